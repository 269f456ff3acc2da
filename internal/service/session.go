package service

import (
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/ForgeAgent/internal/domain/conversation"
	"github.com/Strob0t/ForgeAgent/internal/domain/policy"
	"github.com/Strob0t/ForgeAgent/internal/domain/session"
	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
	"github.com/Strob0t/ForgeAgent/internal/port/approval"
	"github.com/Strob0t/ForgeAgent/internal/port/broadcast"
	"github.com/Strob0t/ForgeAgent/internal/port/provider"
	"github.com/Strob0t/ForgeAgent/internal/port/transcript"
)

// Options are the agent options fixed at session creation.
type Options struct {
	RepoRoot      string
	Model         string
	SystemPrompt  string
	MaxIterations int
	MaxTokens     int
	Temperature   *float64
}

// Session is the runtime state of one agent session: its collaborators
// plus the conversation, guarded by a per-session run mutex.
type Session struct {
	Info     session.Info
	Options  Options
	Registry *tool.Registry
	Provider provider.Provider
	Policy   *policy.Engine
	Log      transcript.Writer
	Approver approval.Arbitrator
	Sink     broadcast.Sink
	Exec     tool.ExecContext

	// Events is non-nil in server mode; the SSE endpoint drains it.
	Events *EventQueue

	// runMu serializes runs for this session. The conversation is only
	// touched while it is held.
	runMu    sync.Mutex
	messages []conversation.Message

	// streamHeld is the single-reader latch for the event stream.
	streamMu   sync.Mutex
	streamHeld bool
}

// TryRun attempts to take the run mutex without blocking.
func (s *Session) TryRun() bool { return s.runMu.TryLock() }

// EndRun releases the run mutex.
func (s *Session) EndRun() { s.runMu.Unlock() }

// Messages returns the current conversation. Callers must hold the run
// mutex (i.e. be the active runner).
func (s *Session) Messages() []conversation.Message { return s.messages }

// SetMessages replaces the conversation, used for resumption.
func (s *Session) SetMessages(msgs []conversation.Message) { s.messages = msgs }

// AppendMessage adds one message to the conversation.
func (s *Session) AppendMessage(m conversation.Message) { s.messages = append(s.messages, m) }

// AcquireStream takes the single-reader latch; false when already held.
func (s *Session) AcquireStream() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.streamHeld {
		return false
	}
	s.streamHeld = true
	return true
}

// ReleaseStream releases the single-reader latch.
func (s *Session) ReleaseStream() {
	s.streamMu.Lock()
	s.streamHeld = false
	s.streamMu.Unlock()
}

// Store is the concurrent session map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Put registers a session, replacing any previous one with the same id.
func (st *Store) Put(s *Session) {
	st.mu.Lock()
	st.sessions[s.Info.ID] = s
	st.mu.Unlock()
}

// Get looks up a session by id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// List returns the infos of all registered sessions, newest first.
func (st *Store) List() []session.Info {
	st.mu.RLock()
	defer st.mu.RUnlock()

	infos := make([]session.Info, 0, len(st.sessions))
	for _, s := range st.sessions {
		infos = append(infos, s.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos
}

// touchTime exists so tests can pin CreatedAt ordering deterministically.
var touchTime = func() time.Time { return time.Now().UTC() }
