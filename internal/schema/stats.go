package schema

import "fmt"

// StatKey names one of the six trainable skills.
type StatKey string

const (
	StatForehand StatKey = "forehand"
	StatBackhand StatKey = "backhand"
	StatServe    StatKey = "serve"
	StatVolley   StatKey = "volley"
	StatFootwork StatKey = "footwork"
	StatMental   StatKey = "mental"
)

// StatKeys lists every skill in display order.
var StatKeys = []StatKey{StatForehand, StatBackhand, StatServe, StatVolley, StatFootwork, StatMental}

// MinStat is the floor for profile stat values.
const MinStat = 1

// ParseStatKey validates a skill name.
func ParseStatKey(s string) (StatKey, error) {
	for _, k := range StatKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown stat %q (want one of forehand, backhand, serve, volley, footwork, mental)", s)
}

// Stats holds one integer per skill. It is used both for profile totals and
// for the per-log delta (gainedStats).
type Stats struct {
	Forehand int `json:"forehand"`
	Backhand int `json:"backhand"`
	Serve    int `json:"serve"`
	Volley   int `json:"volley"`
	Footwork int `json:"footwork"`
	Mental   int `json:"mental"`
}

// DefaultStats returns the starting profile stats.
func DefaultStats() Stats {
	return Stats{Forehand: MinStat, Backhand: MinStat, Serve: MinStat, Volley: MinStat, Footwork: MinStat, Mental: MinStat}
}

// Get returns the value for key k.
func (s Stats) Get(k StatKey) int {
	switch k {
	case StatForehand:
		return s.Forehand
	case StatBackhand:
		return s.Backhand
	case StatServe:
		return s.Serve
	case StatVolley:
		return s.Volley
	case StatFootwork:
		return s.Footwork
	case StatMental:
		return s.Mental
	}
	return 0
}

// Set assigns v to key k. Unknown keys are ignored.
func (s *Stats) Set(k StatKey, v int) {
	switch k {
	case StatForehand:
		s.Forehand = v
	case StatBackhand:
		s.Backhand = v
	case StatServe:
		s.Serve = v
	case StatVolley:
		s.Volley = v
	case StatFootwork:
		s.Footwork = v
	case StatMental:
		s.Mental = v
	}
}

// Add returns s + d per key.
func (s Stats) Add(d Stats) Stats {
	out := s
	for _, k := range StatKeys {
		out.Set(k, s.Get(k)+d.Get(k))
	}
	return out
}

// Sub returns s - d per key without any floor.
func (s Stats) Sub(d Stats) Stats {
	out := s
	for _, k := range StatKeys {
		out.Set(k, s.Get(k)-d.Get(k))
	}
	return out
}

// SubFloor returns s - d per key, clamping every result to at least floor.
func (s Stats) SubFloor(d Stats, floor int) Stats {
	out := s
	for _, k := range StatKeys {
		out.Set(k, max(floor, s.Get(k)-d.Get(k)))
	}
	return out
}

// Total is the sum over all keys.
func (s Stats) Total() int {
	total := 0
	for _, k := range StatKeys {
		total += s.Get(k)
	}
	return total
}

// IsZero reports whether every key is zero.
func (s Stats) IsZero() bool {
	return s == Stats{}
}

// ValidateDelta checks that a gainedStats delta has no negative entries.
func (s Stats) ValidateDelta() error {
	for _, k := range StatKeys {
		if v := s.Get(k); v < 0 {
			return fmt.Errorf("gained %s must be non-negative (got %d)", k, v)
		}
	}
	return nil
}
