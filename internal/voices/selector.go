package voices

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nuevpro/ventas/internal/models"
)

// Selector draws independent, uniform samples (with replacement) from the catalog.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSelector() *Selector {
	seed := uint64(time.Now().UnixNano())
	return NewSelectorWithRand(rand.New(rand.NewPCG(seed, seed>>17|1)))
}

func NewSelectorWithRand(r *rand.Rand) *Selector {
	return &Selector{rnd: r}
}

func (s *Selector) PickRandom() models.VoiceSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.VoiceSelection{
		Voice:             catalog[s.rnd.IntN(len(catalog))],
		EmotionalState:    emotionalStates[s.rnd.IntN(len(emotionalStates))],
		ConversationStyle: conversationStyles[s.rnd.IntN(len(conversationStyles))],
	}
}
