package app

import (
	"math/rand"
	"time"
)

// HintEngine reveals answer letters at random.
type HintEngine struct {
	rnd *rand.Rand
}

func NewHintEngine(rnd *rand.Rand) *HintEngine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &HintEngine{rnd: rnd}
}

// Reveal uncovers one hidden position chosen uniformly and counts it as a hint.
// It returns false without touching the session when nothing is hidden.
func (h *HintEngine) Reveal(s *Session) ([]string, bool) {
	answer := []rune(s.Question.Answer)
	hidden := make([]int, 0, len(s.Revealed))
	for i, shown := range s.Revealed {
		if !shown && i < len(answer) {
			hidden = append(hidden, i)
		}
	}
	if len(hidden) == 0 {
		return s.Pattern(), false
	}

	idx := hidden[h.rnd.Intn(len(hidden))]
	s.Revealed[idx] = true
	s.HintsUsed++
	return s.Pattern(), true
}
