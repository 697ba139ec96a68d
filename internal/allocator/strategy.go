package allocator

import (
	"math/rand/v2"
	"sync"

	"approvalflow/backend/pkg/models"
)

// SelectionStrategy picks one reviewer from a non-empty eligible set.
type SelectionStrategy interface {
	Pick(eligible []*models.User) *models.User
}

// RandomStrategy picks an arbitrary eligible reviewer. This is the default:
// the spread is intentional so review load does not pile onto one person.
type RandomStrategy struct{}

// NewRandomStrategy creates a RandomStrategy.
func NewRandomStrategy() *RandomStrategy {
	return &RandomStrategy{}
}

func (s *RandomStrategy) Pick(eligible []*models.User) *models.User {
	return eligible[rand.IntN(len(eligible))]
}

// RoundRobinStrategy cycles through eligible reviewers per role in username
// order. Deterministic alternative to RandomStrategy.
type RoundRobinStrategy struct {
	mu   sync.Mutex
	next map[models.Role]int
}

// NewRoundRobinStrategy creates a RoundRobinStrategy.
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{next: make(map[models.Role]int)}
}

func (s *RoundRobinStrategy) Pick(eligible []*models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := eligible[0].Role
	idx := s.next[role] % len(eligible)
	s.next[role] = idx + 1
	return eligible[idx]
}
