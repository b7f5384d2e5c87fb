package telegram

import "sync"

// Session carries a user's sticky preferences and staged reference images
// between messages.
type Session struct {
	ChatID      int64
	AspectRatio string
	Resolution  string
	// References are storage keys of uploaded reference images, consumed by
	// the next generation request.
	References []string
	LastJobID  string
}

// SessionStore holds per-user sessions in memory. Sessions are a chat-UX
// convenience; losing them on restart is acceptable.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	defaultAspect     string
	defaultResolution string
}

// NewSessionStore creates a store seeded with default render settings.
func NewSessionStore(defaultAspect, defaultResolution string) *SessionStore {
	return &SessionStore{
		sessions:          make(map[int64]*Session),
		defaultAspect:     defaultAspect,
		defaultResolution: defaultResolution,
	}
}

// Get returns the session for a user, creating it on first contact.
func (s *SessionStore) Get(userID, chatID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{
			ChatID:      chatID,
			AspectRatio: s.defaultAspect,
			Resolution:  s.defaultResolution,
		}
		s.sessions[userID] = sess
	}
	sess.ChatID = chatID
	return sess
}

// Update applies fn to the user's session under the lock.
func (s *SessionStore) Update(userID, chatID int64, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{
			ChatID:      chatID,
			AspectRatio: s.defaultAspect,
			Resolution:  s.defaultResolution,
		}
		s.sessions[userID] = sess
	}
	sess.ChatID = chatID
	fn(sess)
}
