package policy

import "sync"

// State is the poll state owned by the scheduler: the watermark echoed back
// to the API and the seen-set of dispatched ids. It lives in memory only.
//
// Each id in the seen-set remembers the token of the batch that claimed it,
// so a delayed dispatch can tell whether its claim is still current.
type State struct {
	mu        sync.Mutex
	watermark string
	seen      map[string]uint64
	tokens    uint64
}

func NewState() *State {
	return &State{seen: map[string]uint64{}}
}

// NewToken returns a fresh, never-zero batch token.
func (s *State) NewToken() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens++
	return s.tokens
}

// Claim inserts id under token. It returns false when id is already seen.
// The check and the insert happen under one lock.
func (s *State) Claim(id string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = token
	return true
}

// Holds reports whether id is still seen under token.
func (s *State) Holds(id string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.seen[id]
	return ok && t == token
}

// Seen reports whether id is in the seen-set.
func (s *State) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// Clear empties the seen-set and the watermark and returns what was there.
func (s *State) Clear() (cleared int, oldWatermark string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared = len(s.seen)
	oldWatermark = s.watermark
	s.seen = map[string]uint64{}
	s.watermark = ""
	return cleared, oldWatermark
}

func (s *State) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *State) Watermark() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

func (s *State) SetWatermark(w string) {
	s.mu.Lock()
	s.watermark = w
	s.mu.Unlock()
}
