package logger

import (
	"strconv"
	"strings"
	"sync"
)

// ratioSampler admits the first pass events out of every cycle. A zeroed
// sampler admits everything.
type ratioSampler struct {
	mu    sync.Mutex
	pass  int
	cycle int
	seen  int
}

func newRatioSampler(pass, cycle int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(pass, cycle)
	return s
}

// Set reconfigures the ratio and restarts the current window.
func (s *ratioSampler) Set(pass, cycle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pass <= 0 || cycle <= 0 {
		s.pass, s.cycle, s.seen = 0, 0, 0
		return
	}
	if pass > cycle {
		pass = cycle
	}
	s.pass, s.cycle, s.seen = pass, cycle, 0
}

// Allow reports whether the current event passes sampling.
func (s *ratioSampler) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle <= 0 {
		return true
	}
	s.seen++
	if s.seen > s.cycle {
		s.seen = 1
	}
	return s.seen <= s.pass
}

// parseRatioSpec understands "1/50" style ratios and bare "50" meaning
// one in fifty. Unparseable input yields (0, 0).
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if numStr, denStr, ok := strings.Cut(spec, "/"); ok {
		num, errN := strconv.Atoi(strings.TrimSpace(numStr))
		den, errD := strconv.Atoi(strings.TrimSpace(denStr))
		if errN == nil && errD == nil {
			return num, den
		}
		return 0, 0
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
