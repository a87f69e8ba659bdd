package storageserver

import (
	"sync"

	"scribe.io/errors"
)

// LockSession is one active (filename, user, node) entry in the global
// locked-file registry. The Snapshot field records the sentence list as
// it stood at lock time so that a later WriteWord resolves the node by
// identity, not by re-deriving an index that parallel insertions or
// deletions may have shifted.
type LockSession struct {
	Filename     string
	User         string
	Node         *SentenceNode
	Snapshot     []*SentenceNode
	OriginalText string
	UndoSaved    bool
	Active       bool
}

type lockKey struct {
	filename string
	user     string
	node     *SentenceNode
}

// LockRegistry is the SS-wide bounded set of active lock sessions,
// protected by one mutex.
type LockRegistry struct {
	mu       sync.Mutex
	sessions map[lockKey]*LockSession
	capacity int
}

func NewLockRegistry(capacity int) *LockRegistry {
	if capacity <= 0 {
		capacity = 1
	}
	return &LockRegistry{sessions: make(map[lockKey]*LockSession), capacity: capacity}
}

// Add records a new active session. The node-level mutual exclusion is
// enforced by the caller (LockSentence) before Add is called; Add only
// fails if the registry is at capacity.
func (l *LockRegistry) Add(s *LockSession) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sessions) >= l.capacity {
		return errors.E(errors.Op("LockRegistry.Add"), errors.Path(s.Filename), errors.FileOperationFailed,
			errors.Str("lock registry at capacity"))
	}
	s.Active = true
	l.sessions[lockKey{s.Filename, s.User, s.Node}] = s
	return nil
}

// Remove deletes the session for (filename, user, node).
func (l *LockRegistry) Remove(filename, user string, node *SentenceNode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, lockKey{filename, user, node})
}

// SessionsForUser returns every active session owned by user, used by
// CleanupUserLocks on disconnect.
func (l *LockRegistry) SessionsForUser(user string) []*LockSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*LockSession
	for k, s := range l.sessions {
		if k.user == user {
			out = append(out, s)
		}
	}
	return out
}

// Len reports the number of active sessions, for tests and diagnostics.
func (l *LockRegistry) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
