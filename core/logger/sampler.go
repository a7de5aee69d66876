package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// debugSampler lets through n of every d calls. A zero ratio lets everything through.
type debugSampler struct {
	n, d atomic.Int64
	seen atomic.Uint64
}

func (s *debugSampler) Set(n, d int) {
	if n <= 0 || d <= 0 {
		n, d = 0, 0
	}
	if n > d {
		n = d
	}
	s.n.Store(int64(n))
	s.d.Store(int64(d))
	s.seen.Store(0)
}

func (s *debugSampler) Allow() bool {
	n, d := s.n.Load(), s.d.Load()
	if n <= 0 || d <= 0 {
		return true
	}
	i := s.seen.Add(1) - 1
	return int64(i%uint64(d)) < n
}

// parseRatio accepts "n/d" or a bare "d" meaning 1/d. ok is false for
// malformed input; "0" yields (0, 0, true).
func parseRatio(ratio string) (num, den int, ok bool) {
	ratio = strings.TrimSpace(ratio)
	if a, b, found := strings.Cut(ratio, "/"); found {
		n, errN := strconv.Atoi(strings.TrimSpace(a))
		d, errD := strconv.Atoi(strings.TrimSpace(b))
		if errN != nil || errD != nil {
			return 0, 0, false
		}
		return n, d, true
	}
	v, err := strconv.Atoi(ratio)
	switch {
	case err != nil:
		return 0, 0, false
	case v <= 0:
		return 0, 0, true
	default:
		return 1, v, true
	}
}
