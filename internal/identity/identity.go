// Package identity owns the installation's persisted session identity and
// operating mode.
package identity

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/ashureev/smartfi/internal/domain"
	"github.com/ashureev/smartfi/internal/store"
	"github.com/google/uuid"
)

// Persisted keys. These match the names the web dashboard used in local storage.
const (
	SessionIDKey = "mcp_session_id"
	DemoModeKey  = "fi_mcp_demo_mode"
	DemoPhoneKey = "fi_mcp_demo_phone"

	sessionIDPrefix = "mcp-session-"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SessionStore persists the session id and mode through a store.KV. When the
// backing store fails it degrades to in-memory state for the rest of the
// process; that is not reported as an error.
type SessionStore struct {
	mu       sync.Mutex
	kv       store.KV
	degraded bool
	id       string
	logger   *slog.Logger
}

// NewSessionStore creates a session store over kv. A nil kv starts degraded.
func NewSessionStore(kv store.KV, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SessionStore{kv: kv, logger: logger}
	if kv == nil {
		s.kv = store.NewMemory()
		s.degraded = true
	}
	return s
}

// Degraded reports whether persistence has fallen back to memory.
func (s *SessionStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// degrade switches to in-memory persistence, carrying over the known id.
// Caller must hold s.mu.
func (s *SessionStore) degrade(op string, err error) {
	if s.degraded {
		return
	}
	s.logger.Warn("Session persistence unavailable, continuing in memory", "op", op, "error", err)
	mem := store.NewMemory()
	if s.id != "" {
		_ = mem.Set(context.Background(), SessionIDKey, s.id)
	}
	s.kv = mem
	s.degraded = true
}

func (s *SessionStore) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.degrade("get "+key, err)
		v, ok, _ = s.kv.Get(ctx, key)
	}
	return v, ok
}

func (s *SessionStore) set(ctx context.Context, key, value string) {
	if err := s.kv.Set(ctx, key, value); err != nil {
		s.degrade("set "+key, err)
		_ = s.kv.Set(ctx, key, value)
	}
}

func (s *SessionStore) remove(ctx context.Context, key string) {
	if err := s.kv.Remove(ctx, key); err != nil {
		s.degrade("remove "+key, err)
		_ = s.kv.Remove(ctx, key)
	}
}

// GetOrCreateSessionID returns the persisted session id, generating and
// persisting one on first use. The id never changes within a process.
func (s *SessionStore) GetOrCreateSessionID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return s.id
	}

	if v, ok := s.get(ctx, SessionIDKey); ok && isValidSessionID(v) {
		s.id = v
		return s.id
	} else if ok {
		s.logger.Warn("Discarding malformed persisted session id")
	}

	s.id = generateSessionID()
	s.set(ctx, SessionIDKey, s.id)
	s.logger.Info("Generated session id", "session_id", s.id, "persisted", !s.degraded)
	return s.id
}

// PersistedMode reads the mode left by a previous run. Demo mode without a
// phone number reads back as unset.
func (s *SessionStore) PersistedMode(ctx context.Context) domain.PersistedMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	flag, ok := s.get(ctx, DemoModeKey)
	if !ok {
		return domain.PersistedMode{}
	}

	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "true":
		phone, ok := s.get(ctx, DemoPhoneKey)
		if !ok || phone == "" {
			return domain.PersistedMode{}
		}
		return domain.PersistedMode{Mode: domain.ModeDemo, PhoneNumber: phone}
	case "false":
		return domain.PersistedMode{Mode: domain.ModeDelegated}
	default:
		return domain.PersistedMode{}
	}
}

// SetMode persists mode state. ModeUnset is equivalent to ClearMode.
func (s *SessionStore) SetMode(ctx context.Context, mode domain.PersistedMode) {
	if mode.Mode == domain.ModeUnset {
		s.ClearMode(ctx)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if mode.Mode == domain.ModeDemo {
		s.set(ctx, DemoModeKey, "true")
		s.set(ctx, DemoPhoneKey, mode.PhoneNumber)
		return
	}
	s.set(ctx, DemoModeKey, "false")
	s.remove(ctx, DemoPhoneKey)
}

// ClearMode removes all persisted mode state.
func (s *SessionStore) ClearMode(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(ctx, DemoModeKey)
	s.remove(ctx, DemoPhoneKey)
}

func generateSessionID() string {
	return sessionIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func isValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
