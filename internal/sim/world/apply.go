package world

import (
	"fmt"

	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/tuning"
)

// ApplyEvent is the only mutation path into w. It applies ev fully before
// returning and reports the messages it produced, in order.
//
// Events are not idempotent: applying the same Move twice moves the agent
// twice. Callers must deliver each event exactly once.
func ApplyEvent(w *World, ev protocol.Event) []protocol.Message {
	var out []protocol.Message
	switch ev.Kind {
	case protocol.EventAgentIntents:
		a := w.agents[ev.AgentID]
		if a == nil || !a.Alive() {
			return nil
		}
		for _, in := range ev.Intents {
			if !a.Alive() {
				break
			}
			out = w.applyIntent(out, a, in)
		}
	case protocol.EventTimerTick:
		out = w.applyTimerTick(out, ev.ElapsedMs)
	case protocol.EventInput:
		out = w.applyInput(out, ev.Text)
	}
	return out
}

func (w *World) msg(kind protocol.MessageKind, a *Agent) protocol.Message {
	m := protocol.Message{Tick: w.tick, Kind: kind}
	if a != nil {
		m.AgentID = a.ID
		m.AgentName = a.Name
	}
	return m
}

func (w *World) system(text string) protocol.Message {
	m := w.msg(protocol.MsgSystem, nil)
	m.Text = text
	return m
}

func (w *World) applyIntent(out []protocol.Message, a *Agent, in protocol.Intent) []protocol.Message {
	switch in.Kind {
	case protocol.IntentSpeak:
		return w.applySpeak(out, a, in.Text)
	case protocol.IntentMove:
		return w.applyMove(out, a, in.Direction)
	case protocol.IntentPickup:
		return w.applyPickup(out, a, w.items.Resolve(in.Item), in.Count)
	case protocol.IntentUse:
		return w.applyUse(out, a, w.items.Resolve(in.Item))
	case protocol.IntentDrop:
		return w.applyDrop(out, a, w.items.Resolve(in.Item), in.Count)
	case protocol.IntentTrade:
		return w.applyTrade(out, a, in.Target)
	case protocol.IntentAttack:
		return w.applyAttack(out, a, in.Target)
	}
	return out
}

func (w *World) applySpeak(out []protocol.Message, a *Agent, text string) []protocol.Message {
	if text == "" {
		return out
	}
	rl := w.cfg.RateLimits
	if ok, _ := a.RateLimitAllow("SAY", w.tick, uint64(rl.SayWindowTicks), rl.SayMax); !ok {
		return out
	}
	m := w.msg(protocol.MsgSpeak, a)
	m.Text = text
	return append(out, m)
}

func (w *World) applyMove(out []protocol.Message, a *Agent, d protocol.Direction) []protocol.Message {
	dx, dy, ok := d.Delta()
	if !ok {
		return out
	}
	from := a.Pos
	to := from.Add(dx, dy)
	if a.Interacting || !w.mapSvc.Walkable(a.MapID, to.X, to.Y) {
		if w.cfg.MoveFailure != tuning.MoveFailureNotice {
			return out
		}
		m := w.msg(protocol.MsgBlocked, a)
		m.Code = protocol.ErrBlocked
		m.From, m.To = &from, &to
		if a.Interacting {
			m.Text = "busy trading"
		} else {
			m.Text = fmt.Sprintf("cannot move %s", d)
		}
		return append(out, m)
	}
	a.Pos = to
	m := w.msg(protocol.MsgMovement, a)
	m.From, m.To = &from, &to
	return append(out, m)
}

func (w *World) applyPickup(out []protocol.Message, a *Agent, item string, n int) []protocol.Message {
	m := w.maps[a.MapID]
	if m == nil || !m.RemoveItem(a.Pos, item, n) {
		return out
	}
	a.give(item, n)
	msg := w.msg(protocol.MsgItemPickup, a)
	msg.Item, msg.Count = item, n
	return append(out, msg)
}

func (w *World) applyDrop(out []protocol.Message, a *Agent, item string, n int) []protocol.Message {
	m := w.maps[a.MapID]
	if m == nil || !m.InBounds(a.Pos) || !a.take(item, n) {
		return out
	}
	m.AddItem(a.Pos, item, n)
	msg := w.msg(protocol.MsgItemDrop, a)
	msg.Item, msg.Count = item, n
	return append(out, msg)
}

func (w *World) applyUse(out []protocol.Message, a *Agent, item string) []protocol.Message {
	heal := w.healAmount(item)
	if heal <= 0 || !a.take(item, 1) {
		return out
	}
	before := a.HP
	a.HP = min(a.MaxHP, a.HP+heal)
	m := w.msg(protocol.MsgItemUse, a)
	m.Item, m.Count = item, 1
	m.Text = fmt.Sprintf("restores %d HP", a.HP-before)
	return append(out, m)
}

func (w *World) applyTrade(out []protocol.Message, a *Agent, targetID string) []protocol.Message {
	t := w.agents[targetID]
	if t == nil || t == a || !t.Alive() || t.MapID != a.MapID {
		return out
	}
	if a.Interacting || t.Interacting || protocol.Chebyshev(a.Pos, t.Pos) > 1 {
		return out
	}
	if ok, _ := w.broker.Open(a.ID, t.ID); !ok {
		return out
	}
	w.openTrade(a, t)
	m := w.msg(protocol.MsgTrade, a)
	m.Target = t.ID
	return append(out, m)
}

func (w *World) applyAttack(out []protocol.Message, a *Agent, targetID string) []protocol.Message {
	t := w.agents[targetID]
	if t == nil || t == a || !t.Alive() || t.MapID != a.MapID {
		return out
	}
	if a.Interacting || protocol.Chebyshev(a.Pos, t.Pos) > 1 {
		return out
	}
	res := w.combat.Resolve(
		Combatant{ID: a.ID, HP: a.HP, MaxHP: a.MaxHP},
		Combatant{ID: t.ID, HP: t.HP, MaxHP: t.MaxHP},
	)
	dmg := max(0, res.Damage)
	t.HP = max(0, t.HP-dmg)

	until := w.tick + uint64(w.cfg.CombatMemoryTicks)
	a.CombatTarget, a.CombatUntil = t.ID, until
	t.CombatTarget, t.CombatUntil = a.ID, until

	m := w.msg(protocol.MsgCombat, a)
	m.Target = t.ID
	m.Damage = dmg
	out = append(out, m)

	if t.HP == 0 {
		out = append(out, w.defeat(t, a))
	}
	return out
}

func (w *World) defeat(t, by *Agent) protocol.Message {
	t.Dead = true
	t.clearCombat()
	if s := w.tradeFor(t.ID); s != nil {
		w.closeTrade(s)
	}
	if by.CombatTarget == t.ID {
		by.clearCombat()
	}
	m := w.system(fmt.Sprintf("%s is defeated by %s", t.Name, by.Name))
	m.AgentID = t.ID
	m.AgentName = t.Name
	m.Target = by.ID
	return m
}

func (w *World) applyTimerTick(out []protocol.Message, elapsedMs int64) []protocol.Message {
	w.tick++
	before := w.clock.Seconds
	if w.clock.Advance(elapsedMs, w.cfg.GameSpeed) {
		out = append(out, w.system(fmt.Sprintf("A new day begins: Day %d", w.clock.Time().Day)))
	}
	for _, id := range w.AgentIDs() {
		a := w.agents[id]
		if a.CombatTarget == "" {
			continue
		}
		if t := w.agents[a.CombatTarget]; a.CombatUntil <= w.tick || t == nil || !t.Alive() {
			a.clearCombat()
		}
	}
	for _, id := range w.tradeIDs() {
		s := w.trades[id]
		if s.ExpiresTick > w.tick {
			continue
		}
		w.closeTrade(s)
		out = append(out, w.system(fmt.Sprintf("trade between %s and %s has ended", s.A, s.B)))
	}
	return w.runSchedule(out, before, w.clock.Seconds)
}
