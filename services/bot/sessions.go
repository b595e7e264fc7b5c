package bot

import (
	"sync"
	"time"

	"certassist-backend/lib/scrapers/tnedistrict"
)

// Session holds the per-chat conversation state between commands. A
// chat has at most one active application at a time; a new /check
// replaces whatever was there.
type Session struct {
	ApplicationNo string
	Result        tnedistrict.StatusResult
	JobID         string
	PaymentLinkID string
	PaymentUrl    string
	Paid          bool

	// set once the certificate is uploaded but payment is still owed
	PendingArtifact string

	UpdatedAt time.Time
}

// SessionStore is an in-memory chat state table with a fixed TTL. State
// here is advisory: losing it only means the user has to /check again.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[int64]*Session
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
}

// Get returns a snapshot of the live session for chatID, or nil when
// absent or expired. Expired entries are dropped on access. Mutations
// go through Update; writing to the returned copy changes nothing.
func (s *SessionStore) Get(chatID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return nil
	}
	if s.now().Sub(sess.UpdatedAt) > s.ttl {
		delete(s.sessions, chatID)
		return nil
	}
	out := *sess
	return &out
}

func (s *SessionStore) Put(chatID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *sess
	stored.UpdatedAt = s.now()
	s.sessions[chatID] = &stored
}

// Update applies fn to the live session for chatID, refreshing its TTL.
// It is a no-op when no live session exists.
func (s *SessionStore) Update(chatID int64, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return false
	}
	if s.now().Sub(sess.UpdatedAt) > s.ttl {
		delete(s.sessions, chatID)
		return false
	}
	fn(sess)
	sess.UpdatedAt = s.now()
	return true
}

func (s *SessionStore) Delete(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
}

// FindByJob locates the chat whose session is tracking jobID, returning
// a snapshot like Get does. Used when an operator finishes a job and
// the requester needs delivery.
func (s *SessionStore) FindByJob(jobID string) (int64, *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for chatID, sess := range s.sessions {
		if sess.JobID == jobID && s.now().Sub(sess.UpdatedAt) <= s.ttl {
			out := *sess
			return chatID, &out
		}
	}
	return 0, nil
}
