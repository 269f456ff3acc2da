package http

import (
	"fmt"
	"net/http"
)

// Stream handles GET /api/sessions/{id}/stream. It is the session's
// single reader: a second concurrent connection gets 409. Frames are
// standard SSE: `event: <type>` plus one `data:` line of JSON.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Store.Get(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported by response writer")
		return
	}
	if s.Events == nil {
		writeError(w, http.StatusNotImplemented, "session has no event stream")
		return
	}

	if !s.AcquireStream() {
		writeError(w, http.StatusConflict, "stream already connected")
		return
	}
	defer s.ReleaseStream()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		ev, ok := s.Events.Pull(r.Context())
		if !ok {
			return // client disconnected or queue closed
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Payload); err != nil {
			return
		}
		flusher.Flush()
	}
}
