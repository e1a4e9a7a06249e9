package world

import (
	"fmt"
	"sort"
)

type tradeSession struct {
	ID          string
	A           string
	B           string
	OpenedTick  uint64
	ExpiresTick uint64
}

func (w *World) openTrade(a, b *Agent) *tradeSession {
	w.nextTradeNum++
	s := &tradeSession{
		ID:          fmt.Sprintf("T%06d", w.nextTradeNum),
		A:           a.ID,
		B:           b.ID,
		OpenedTick:  w.tick,
		ExpiresTick: w.tick + uint64(w.cfg.TradeSessionTicks),
	}
	w.trades[s.ID] = s
	a.Interacting = true
	b.Interacting = true
	return s
}

func (w *World) closeTrade(s *tradeSession) {
	delete(w.trades, s.ID)
	for _, id := range []string{s.A, s.B} {
		if a := w.agents[id]; a != nil {
			a.Interacting = false
		}
	}
}

func (w *World) tradeFor(agentID string) *tradeSession {
	for _, id := range w.tradeIDs() {
		s := w.trades[id]
		if s.A == agentID || s.B == agentID {
			return s
		}
	}
	return nil
}

func (w *World) tradeIDs() []string {
	ids := make([]string, 0, len(w.trades))
	for id := range w.trades {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TradePartner returns the other party of agentID's open session.
func (w *World) TradePartner(agentID string) (string, bool) {
	s := w.tradeFor(agentID)
	if s == nil {
		return "", false
	}
	if s.A == agentID {
		return s.B, true
	}
	return s.A, true
}
