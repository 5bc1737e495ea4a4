package openid

import "sync"

// LoginAttempt is the per-browser-session state of one in-flight login: the
// anti-replay state token sent with the authorization request, and the
// provider metadata resolved for the attempt.  Both are written atomically
// before the redirect and both must be present when the callback arrives.
type LoginAttempt struct {
	// State is the opaque anti-replay token round-tripped through the
	// provider.  Single use.
	State string

	// Metadata is the provider metadata discovered for this attempt.  The
	// callback uses its cached endpoints rather than re-discovering.
	Metadata *ProviderMetadata
}

// AttemptStore holds at most one LoginAttempt per browser session.  Begin
// overwrites any earlier attempt for the session, so the most recent write
// is authoritative: a superseded attempt's callback will no longer find its
// state and fails as unsolicited.  Consume is read-and-clear, enforcing the
// single-use rule regardless of the callback's outcome.
//
// It is safe for concurrent use.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[string]LoginAttempt
}

// NewAttemptStore creates an empty AttemptStore.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]LoginAttempt),
	}
}

// Begin stores the attempt for the given browser session, superseding any
// earlier attempt for the same session.
func (s *AttemptStore) Begin(sessionID string, attempt LoginAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[sessionID] = attempt
}

// Consume removes and returns the attempt stored for the given browser
// session.  The second return is false when no attempt is in flight.
func (s *AttemptStore) Consume(sessionID string) (LoginAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[sessionID]
	if ok {
		delete(s.attempts, sessionID)
	}
	return attempt, ok
}
