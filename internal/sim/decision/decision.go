// Package decision maps an AgentView to at most one Intent. Nothing here
// touches world state; strategies see only the view they are handed.
package decision

import (
	"sort"

	"npcsim.ai/internal/protocol"
)

// Strategy is one decision rule. Decide returns nil to pass to the next rule.
// Lower Priority values run first.
//
// Decide must not panic. A panic is a programming error and is left to crash
// the calling goroutine.
type Strategy interface {
	Decide(v *protocol.AgentView) *protocol.Intent
	Priority() int
}

// Rand is the randomness a strategy may use. IntN returns a value in [0, n).
type Rand interface {
	IntN(n int) int
}

// Composer evaluates strategies in ascending priority; the first non-nil
// intent wins. Strategies with equal priority keep insertion order.
//
// A Composer is not safe for concurrent mutation. Decide may be called from
// one goroutine at a time unless every strategy is itself stateless.
type Composer struct {
	strategies []Strategy
}

func NewComposer(strategies ...Strategy) *Composer {
	c := &Composer{}
	for _, s := range strategies {
		c.Insert(s)
	}
	return c
}

func (c *Composer) Insert(s Strategy) {
	i := sort.Search(len(c.strategies), func(i int) bool {
		return c.strategies[i].Priority() > s.Priority()
	})
	c.strategies = append(c.strategies, nil)
	copy(c.strategies[i+1:], c.strategies[i:])
	c.strategies[i] = s
}

// Strategies returns the chain in evaluation order.
func (c *Composer) Strategies() []Strategy {
	return append([]Strategy(nil), c.strategies...)
}

func (c *Composer) Decide(v *protocol.AgentView) *protocol.Intent {
	for _, s := range c.strategies {
		if in := s.Decide(v); in != nil {
			return in
		}
	}
	return nil
}

func intent(in protocol.Intent) *protocol.Intent { return &in }
