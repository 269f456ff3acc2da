package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/ForgeAgent/internal/config"
	"github.com/Strob0t/ForgeAgent/internal/secrets"
	"github.com/Strob0t/ForgeAgent/internal/service"
)

// newLLMStub serves a scripted chat-completions stream: the first turn
// requests a RunCommand call, every later turn finishes the run.
func newLLMStub(t *testing.T) *httptest.Server {
	t.Helper()
	var turns atomic.Int64
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if turns.Add(1) == 1 {
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_k\",\"function\":{\"name\":\"RunCommand\",\"arguments\":\"{\\\"exe\\\":\\\"definitely-not-a-binary\\\"}\"}}]}}]}\n\n")
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"done\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func newTestServer(t *testing.T, llmURL string) (*httptest.Server, *service.Store) {
	t.Helper()
	cfg := config.Defaults()
	cfg.LLM.Provider = config.ProviderOpenAICompatible
	cfg.LLM.Endpoint = llmURL
	cfg.LLM.Model = "stub-model"
	cfg.Agent.MaxIterations = 5

	vault, err := secrets.NewVault(secrets.EnvLoader())
	if err != nil {
		t.Fatal(err)
	}

	store := service.NewStore()
	h := &Handlers{
		Store:   store,
		Factory: service.NewFactory(&cfg, vault, slog.Default(), nil),
		Runner:  service.NewRunner(slog.Default(), nil),
		Logger:  slog.Default(),
	}

	r := chi.NewRouter()
	MountRoutes(r, h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/sessions", map[string]string{
		"workspacePath": t.TempDir(),
	})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.SessionID
}

// sseEvent is one parsed frame from the stream endpoint.
type sseEvent struct {
	Name string
	Data map[string]any
}

// readEvents consumes the stream until stop returns true or the
// deadline passes.
func readEvents(t *testing.T, body *bufio.Reader, stop func(sseEvent) bool) []sseEvent {
	t.Helper()
	var events []sseEvent
	deadline := time.Now().Add(10 * time.Second)

	var current sseEvent
	for time.Now().Before(deadline) {
		line, err := body.ReadString('\n')
		if err != nil {
			t.Fatalf("stream read: %v (events so far: %+v)", err, events)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			current = sseEvent{Name: strings.TrimPrefix(line, "event: ")}
		case strings.HasPrefix(line, "data: "):
			_ = json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &current.Data)
		case line == "":
			if current.Name != "" {
				events = append(events, current)
				if stop(current) {
					return events
				}
				current = sseEvent{}
			}
		}
	}
	t.Fatalf("stream deadline reached, events: %+v", events)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	llm := newLLMStub(t)
	defer llm.Close()
	srv, _ := newTestServer(t, llm.URL)
	id := createSession(t, srv)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" {
		t.Fatalf("status = %q, want ok", health.Status)
	}
	if health.Provider.Name != "openai-compatible" || health.Provider.Model != "stub-model" {
		t.Fatalf("provider = %+v", health.Provider)
	}
	if !health.Provider.APIKeyConfigured {
		t.Fatal("openai-compatible needs no key, so it must report configured")
	}
	if health.ActiveSessions != 1 || len(health.Workspaces) != 1 {
		t.Fatalf("sessions = %d, workspaces = %+v", health.ActiveSessions, health.Workspaces)
	}
	if health.Workspaces[0].SessionID != id || !health.Workspaces[0].OK {
		t.Fatalf("workspace status = %+v", health.Workspaces[0])
	}
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	llm := newLLMStub(t)
	defer llm.Close()
	srv, store := newTestServer(t, llm.URL)

	id := createSession(t, srv)
	if _, ok := store.Get(id); !ok {
		t.Fatal("created session not in store")
	}

	resp, err := http.Get(srv.URL + "/api/sessions/" + id)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/sessions/ghost")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session status %d, want 404", resp.StatusCode)
	}
}

func TestChatValidation(t *testing.T) {
	llm := newLLMStub(t)
	defer llm.Close()
	srv, _ := newTestServer(t, llm.URL)
	id := createSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/sessions/"+id+"/chat", map[string]string{"message": ""})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty message status %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/sessions/ghost/chat", map[string]string{"message": "hi"})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session chat status %d, want 404", resp.StatusCode)
	}
}

func TestStreamSingleReader(t *testing.T) {
	llm := newLLMStub(t)
	defer llm.Close()
	srv, _ := newTestServer(t, llm.URL)
	id := createSession(t, srv)

	first, err := http.Get(srv.URL + "/api/sessions/" + id + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = first.Body.Close() }()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first stream status %d", first.StatusCode)
	}

	second, err := http.Get(srv.URL + "/api/sessions/" + id + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	_ = second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("second stream status %d, want 409", second.StatusCode)
	}
}

func TestApprovalOverTheWire(t *testing.T) {
	llm := newLLMStub(t)
	defer llm.Close()
	srv, _ := newTestServer(t, llm.URL)
	id := createSession(t, srv)

	stream, err := http.Get(srv.URL + "/api/sessions/" + id + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = stream.Body.Close() }()
	reader := bufio.NewReader(stream.Body)

	resp := postJSON(t, srv.URL+"/api/sessions/"+id+"/chat", map[string]string{"message": "run it"})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("chat status %d, want 202", resp.StatusCode)
	}

	// Wait for the approval request with its correlation id.
	events := readEvents(t, reader, func(ev sseEvent) bool {
		return ev.Name == "approval_required"
	})
	approvalEv := events[len(events)-1]
	callID, _ := approvalEv.Data["callId"].(string)
	if callID == "" {
		t.Fatalf("approval event missing callId: %+v", approvalEv)
	}
	if tool, _ := approvalEv.Data["tool"].(string); tool != "RunCommand" {
		t.Fatalf("approval tool = %q", tool)
	}

	// Approve out-of-band.
	resp = postJSON(t, srv.URL+"/api/sessions/"+id+"/approvals/"+callID, map[string]bool{"approved": true})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approval status %d", resp.StatusCode)
	}

	// The pending approval resolves and a tool_result follows.
	events = readEvents(t, reader, func(ev sseEvent) bool {
		return ev.Name == "tool_result"
	})
	resultEv := events[len(events)-1]
	if gotID, _ := resultEv.Data["callId"].(string); gotID != callID {
		t.Fatalf("tool_result callId = %q, want %q", gotID, callID)
	}

	readEvents(t, reader, func(ev sseEvent) bool {
		return ev.Name == "completed"
	})
}

func TestApprovalUnknownCall(t *testing.T) {
	llm := newLLMStub(t)
	defer llm.Close()
	srv, _ := newTestServer(t, llm.URL)
	id := createSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/sessions/"+id+"/approvals/nope", map[string]bool{"approved": true})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown approval status %d, want 404", resp.StatusCode)
	}
}
