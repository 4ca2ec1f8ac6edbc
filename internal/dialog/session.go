package dialog

import (
	"sync"

	"github.com/m3rciful/cowinbot/internal/cowin"
)

// Stage identifies the step a user's conversation is at.
type Stage int

const (
	// StageIdle means no conversation is active; only /start leaves it.
	StageIdle Stage = iota
	// StageState waits for a state pick or a direct pincode.
	StageState
	// StageDistrict waits for a district pick or a repeat confirmation.
	StageDistrict
	// StagePincode waits for a pincode to narrow an oversized district report.
	StagePincode
	// StageDone is terminal; only "Done" is consumed there.
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageState:
		return "state"
	case StageDistrict:
		return "district"
	case StagePincode:
		return "pincode"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// Session is the per-user conversation state. The embedded mutex
// serializes handling of updates from the same user; the store hands
// out the session locked-free and callers lock it for the duration of
// one update.
type Session struct {
	mu sync.Mutex

	Stage Stage

	StateID      int
	StateName    string
	DistrictID   int
	DistrictName string
	Pincode      string

	// Centers caches an oversized district result awaiting a pincode filter.
	Centers []cowin.Center
}

// Lock acquires the per-user exclusion for the session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the per-user exclusion.
func (s *Session) Unlock() { s.mu.Unlock() }

// Reset clears all remembered search data and returns the session to idle.
func (s *Session) Reset() {
	s.Stage = StageIdle
	s.StateID = 0
	s.StateName = ""
	s.DistrictID = 0
	s.DistrictName = ""
	s.Pincode = ""
	s.Centers = nil
}

// HasDistrictSearch reports whether a previous district search is remembered.
func (s *Session) HasDistrictSearch() bool {
	return s.StateID != 0 && s.DistrictID != 0
}

// Store keeps sessions in memory keyed by Telegram user ID.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns the session for the user, creating an idle one if absent.
func (st *Store) Get(userID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[userID]
	if !ok {
		sess = &Session{}
		st.sessions[userID] = sess
	}
	return sess
}

// Stage returns the current stage for the user without creating a session.
func (st *Store) Stage(userID int64) Stage {
	st.mu.Lock()
	sess, ok := st.sessions[userID]
	st.mu.Unlock()
	if !ok {
		return StageIdle
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.Stage
}

// Len reports how many sessions exist.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
