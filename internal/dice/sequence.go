package dice

import (
	"errors"
	"fmt"
)

// ErrInvalidRoll is returned for fixed rolls outside 1-6.
var ErrInvalidRoll = errors.New("invalid die roll")

// Sequence replays fixed rolls in order. Once they run out it defers to
// Fallback, or panics when there is none, so a test that under-supplies
// dice fails loudly.
type Sequence struct {
	rolls    []int
	next     int
	Fallback Source
}

// NewSequence validates rolls and returns a Sequence over them.
func NewSequence(rolls ...int) (*Sequence, error) {
	for i, r := range rolls {
		if r < 1 || r > 6 {
			return nil, fmt.Errorf("%w: roll %d is %d, want 1-6", ErrInvalidRoll, i, r)
		}
	}
	return &Sequence{rolls: append([]int(nil), rolls...)}, nil
}

// Fixed is NewSequence for literal rolls known to be valid.
func Fixed(rolls ...int) *Sequence {
	s, err := NewSequence(rolls...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Sequence) D6() int {
	if s.next < len(s.rolls) {
		r := s.rolls[s.next]
		s.next++
		return r
	}
	if s.Fallback != nil {
		return s.Fallback.D6()
	}
	panic(fmt.Sprintf("dice: sequence exhausted after %d rolls", len(s.rolls)))
}

// Used is the number of fixed rolls consumed so far.
func (s *Sequence) Used() int { return s.next }

// Remaining is the number of fixed rolls not yet consumed.
func (s *Sequence) Remaining() int { return len(s.rolls) - s.next }
