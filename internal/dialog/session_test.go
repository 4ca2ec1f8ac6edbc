package dialog

import (
	"sync"
	"testing"
)

func TestStoreCreatesOnce(t *testing.T) {
	st := NewStore()
	a := st.Get(1)
	b := st.Get(1)
	if a != b {
		t.Error("Get should return the same session for the same user")
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Len())
	}
	if st.Get(2) == a {
		t.Error("distinct users must get distinct sessions")
	}
}

func TestStoreStageWithoutSession(t *testing.T) {
	st := NewStore()
	if got := st.Stage(7); got != StageIdle {
		t.Errorf("Stage = %v, want idle", got)
	}
	if st.Len() != 0 {
		t.Error("Stage must not create a session")
	}
}

func TestSessionReset(t *testing.T) {
	s := &Session{
		Stage:        StageDone,
		StateID:      9,
		StateName:    "Delhi",
		DistrictID:   145,
		DistrictName: "East Delhi",
		Pincode:      "110095",
	}
	if !s.HasDistrictSearch() {
		t.Error("session with state and district should report a remembered search")
	}
	s.Reset()
	if s.Stage != StageIdle || s.HasDistrictSearch() || s.Pincode != "" || s.Centers != nil {
		t.Errorf("Reset left data behind: %+v", s)
	}
}

func TestStoreConcurrentGet(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			sess := st.Get(id % 5)
			sess.Lock()
			sess.Stage = StageState
			sess.Unlock()
		}(int64(i))
	}
	wg.Wait()
	if st.Len() != 5 {
		t.Errorf("Len = %d, want 5", st.Len())
	}
}
