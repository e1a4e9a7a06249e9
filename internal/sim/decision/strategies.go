package decision

import (
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/tuning"
)

const (
	PriorityInteracting      = 10
	PriorityCombat           = 20
	PriorityGroup            = 30
	PrioritySelfPreservation = 40
	PriorityGreet            = 500
	PriorityFallback         = 1000
)

// Default returns the reference chain: interacting, combat, group,
// self-preservation and the weighted fallback.
func Default(weights tuning.Fallback, rng Rand) *Composer {
	return NewComposer(
		Interacting{},
		Combat{},
		Group{},
		SelfPreservation{},
		&Fallback{Weights: weights, Rand: rng},
	)
}

// Interacting keeps agents in a transaction from acting on their own.
type Interacting struct{}

func (Interacting) Priority() int { return PriorityInteracting }

func (Interacting) Decide(v *protocol.AgentView) *protocol.Intent {
	if v.Interacting {
		return intent(protocol.Idle())
	}
	return nil
}

// Combat flees below a quarter of max HP, attacks an adjacent target and
// otherwise closes in. It passes when the target is out of sight.
type Combat struct{}

func (Combat) Priority() int { return PriorityCombat }

func (Combat) Decide(v *protocol.AgentView) *protocol.Intent {
	if v.Combat == nil {
		return nil
	}
	target, ok := v.Entity(v.Combat.TargetID)
	if !ok {
		return nil
	}
	toward, apart := protocol.DirectionToward(v.Pos, target.Pos)
	if v.HP*4 < v.MaxHP {
		if !apart {
			return intent(protocol.Move(protocol.DirUp))
		}
		return intent(protocol.Move(toward.Opposite()))
	}
	if protocol.Chebyshev(v.Pos, target.Pos) <= 1 {
		return intent(protocol.Attack(target.ID))
	}
	return intent(protocol.Move(toward))
}

// Group keeps party members near their leader and stops healthy members from
// wandering off. A hurt member falls through so it can heal.
type Group struct{}

func (Group) Priority() int { return PriorityGroup }

func (Group) Decide(v *protocol.AgentView) *protocol.Intent {
	if !v.InParty {
		return nil
	}
	if v.PartyLeader != "" {
		if leader, ok := v.Entity(v.PartyLeader); ok && protocol.Chebyshev(v.Pos, leader.Pos) > 1 {
			d, _ := protocol.DirectionToward(v.Pos, leader.Pos)
			return intent(protocol.Move(d))
		}
	}
	if v.HP*2 >= v.MaxHP {
		return intent(protocol.Idle())
	}
	return nil
}

// SelfPreservation uses the strongest healing item once HP drops below half.
type SelfPreservation struct{}

func (SelfPreservation) Priority() int { return PrioritySelfPreservation }

func (SelfPreservation) Decide(v *protocol.AgentView) *protocol.Intent {
	if v.HP*2 >= v.MaxHP {
		return nil
	}
	best := ""
	bestHeal := 0
	// Inventory is sorted by item id, so ties keep the first id.
	for _, e := range v.Inventory {
		if e.Count > 0 && e.HealHP > bestHeal {
			best, bestHeal = e.Item, e.HealHP
		}
	}
	if best == "" {
		return nil
	}
	return intent(protocol.Use(best))
}

// Fallback picks between wandering, picking up what lies underfoot and idling
// by weight. It always returns an intent.
type Fallback struct {
	Weights tuning.Fallback
	Rand    Rand
}

func (*Fallback) Priority() int { return PriorityFallback }

func (f *Fallback) Decide(v *protocol.AgentView) *protocol.Intent {
	here := v.ItemsHere()
	wander, pickup, idle := f.Weights.Wander, f.Weights.Pickup, f.Weights.Idle
	if len(here) == 0 {
		pickup = 0
	}
	total := wander + pickup + idle
	if total <= 0 {
		return intent(protocol.Idle())
	}
	r := f.Rand.IntN(total)
	switch {
	case r < wander:
		return intent(protocol.Move(protocol.Directions[f.Rand.IntN(len(protocol.Directions))]))
	case r < wander+pickup:
		first := here[0]
		for _, it := range here[1:] {
			if it.Item < first.Item {
				first = it
			}
		}
		return intent(protocol.Pickup(first.Item, first.Count))
	}
	return intent(protocol.Idle())
}

// Greet has an agent say one of its lines when a player stands next to it,
// with a 1 in Chance probability per decision.
type Greet struct {
	Chance int
	Rand   Rand
}

func (*Greet) Priority() int { return PriorityGreet }

func (g *Greet) Decide(v *protocol.AgentView) *protocol.Intent {
	if len(v.Dialogue) == 0 {
		return nil
	}
	near := false
	for _, e := range v.Nearby {
		if e.Type == protocol.EntityPlayer && protocol.Chebyshev(v.Pos, e.Pos) <= 1 {
			near = true
			break
		}
	}
	if !near {
		return nil
	}
	if g.Chance > 1 && g.Rand.IntN(g.Chance) != 0 {
		return nil
	}
	return intent(protocol.Speak(v.Dialogue[g.Rand.IntN(len(v.Dialogue))]))
}
