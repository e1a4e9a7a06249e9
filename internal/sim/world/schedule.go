package world

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"strings"

	"npcsim.ai/internal/protocol"
)

// maxCatchUpSlots bounds how many trigger slots of one event a single tick
// evaluates after a large clock jump.
const maxCatchUpSlots = 24 * 60

// WithEvents installs the scripted event table. The table must be compiled.
func WithEvents(t *EventTable) Option { return func(w *World) { w.events = t } }

// eventRun is what a scheduled event has done so far. It is world state.
type eventRun struct {
	Count int
	// Clock seconds of the last firing.
	LastFired uint64
}

type cronSpec struct {
	minutes [60]bool
	hours   [24]bool
}

func (c cronSpec) matches(minute, hour int) bool { return c.minutes[minute] && c.hours[hour] }

func parseCron(s string) (cronSpec, error) {
	var c cronSpec
	f := strings.Fields(s)
	if len(f) != 2 && len(f) != 5 {
		return c, fmt.Errorf("schedule %q: want \"minute hour\" or five cron fields", s)
	}
	for _, rest := range f[2:] {
		if rest != "*" {
			return c, fmt.Errorf("schedule %q: only minute and hour may be restricted", s)
		}
	}
	if err := parseCronField(f[0], c.minutes[:]); err != nil {
		return c, fmt.Errorf("schedule %q: minute: %w", s, err)
	}
	if err := parseCronField(f[1], c.hours[:]); err != nil {
		return c, fmt.Errorf("schedule %q: hour: %w", s, err)
	}
	return c, nil
}

// parseCronField marks allowed values for *, */N, N, N-M, N/S, N-M/S and
// comma lists of those.
func parseCronField(field string, allow []bool) error {
	for _, part := range strings.Split(field, ",") {
		base, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return fmt.Errorf("bad step in %q", part)
			}
			step = n
		}
		lo, hi := 0, len(allow)-1
		switch {
		case base == "*":
		case strings.Contains(base, "-"):
			a, b, _ := strings.Cut(base, "-")
			var errA, errB error
			lo, errA = strconv.Atoi(a)
			hi, errB = strconv.Atoi(b)
			if errA != nil || errB != nil {
				return fmt.Errorf("bad range %q", part)
			}
		default:
			v, err := strconv.Atoi(base)
			if err != nil {
				return fmt.Errorf("bad value %q", part)
			}
			lo = v
			if !hasStep {
				hi = v
			}
		}
		if lo < 0 || hi >= len(allow) || lo > hi {
			return fmt.Errorf("%q out of range 0-%d", part, len(allow)-1)
		}
		for v := lo; v <= hi; v += step {
			allow[v] = true
		}
	}
	return nil
}

// runSchedule fires the scheduled events whose trigger slots fall in the
// clock interval (from, to]. Time triggers have one slot per game minute,
// random triggers one per interval. Events run in table order.
func (w *World) runSchedule(out []protocol.Message, from, to uint64) []protocol.Message {
	if w.events == nil || to <= from {
		return out
	}
	for i := range w.events.Events {
		e := &w.events.Events[i]
		period := uint64(60)
		if e.Trigger.Type == TriggerRandom {
			period = e.Trigger.IntervalSeconds
		}
		first, last := from/period+1, to/period
		if last >= first+maxCatchUpSlots {
			first = last - maxCatchUpSlots + 1
		}
		for slot := first; slot <= last; slot++ {
			out = w.trySchedule(out, e, slot, slot*period)
		}
	}
	return out
}

func (w *World) trySchedule(out []protocol.Message, e *ScheduledEvent, slot, at uint64) []protocol.Message {
	if !e.matches(at) || !w.eventReady(e, at) {
		return out
	}
	rng := w.eventRand(e.ID, slot)
	if c := e.Trigger.Chance; c > 0 && rng.Float64() >= c {
		return out
	}
	run := w.eventRuns[e.ID]
	if run == nil {
		run = &eventRun{}
		w.eventRuns[e.ID] = run
	}
	run.Count++
	run.LastFired = at
	for _, a := range e.Actions {
		out = w.applyEventAction(out, a, rng)
	}
	return out
}

func (e *ScheduledEvent) matches(at uint64) bool {
	t := Clock{Seconds: at}.Time()
	if e.Trigger.Type == TriggerTime && !e.cron.matches(int(t.Minute), int(t.Hour)) {
		return false
	}
	if d := e.Trigger.Days; len(d) == 2 && (t.Day < d[0] || t.Day > d[1]) {
		return false
	}
	if e.windowTo >= 0 {
		sod := int(at % secondsPerDay)
		if sod < e.windowFrom || sod > e.windowTo {
			return false
		}
	}
	return true
}

func (w *World) eventReady(e *ScheduledEvent, at uint64) bool {
	run := w.eventRuns[e.ID]
	if run == nil || run.Count == 0 {
		return true
	}
	if !e.repeatable() {
		return false
	}
	if e.MaxTriggers > 0 && run.Count >= e.MaxTriggers {
		return false
	}
	return at-run.LastFired >= e.CooldownSeconds
}

// eventRand is a function of the world seed, the event and the slot only,
// so replaying the same timer ticks rolls the same numbers.
func (w *World) eventRand(id string, slot uint64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(id))
	return rand.New(rand.NewPCG(uint64(w.cfg.Seed)^h.Sum64(), slot))
}

func (w *World) applyEventAction(out []protocol.Message, a EventAction, rng *rand.Rand) []protocol.Message {
	switch a.Type {
	case ActionMessage:
		return append(out, w.system(a.Text))
	case ActionDialogue:
		ag := w.agents[a.NPC]
		if ag == nil || !ag.Alive() {
			return out
		}
		return append(out, w.speech(ag, a.Text))
	case ActionSpawnNPC:
		return w.eventSpawnNPC(out, a, rng)
	case ActionRemoveNPC:
		return w.eventRemoveNPC(out, a.NPC)
	case ActionAddItem:
		p, err := w.eventPos(a.Map, a.Position, rng)
		if err != nil {
			return append(out, w.inputError(protocol.ErrInvalidTarget, err.Error()))
		}
		return w.placeItem(out, a.Map, p, a.Item, max(1, a.Count))
	case ActionRemoveItem:
		return w.eventRemoveItem(out, a, rng)
	case ActionTeleport:
		return w.eventTeleport(out, a, rng)
	}
	return out
}

func (w *World) speech(a *Agent, text string) protocol.Message {
	m := w.msg(protocol.MsgSpeak, a)
	m.Text = text
	return m
}

// eventPos resolves a fixed or random cell on mapID. Fixed cells are not
// bounds checked here.
func (w *World) eventPos(mapID string, p *EventPos, rng *rand.Rand) (protocol.Position, error) {
	m := w.maps[mapID]
	if m == nil {
		return protocol.Position{}, fmt.Errorf("unknown map %q", mapID)
	}
	if p == nil {
		return protocol.Position{}, fmt.Errorf("no position on %q", mapID)
	}
	if !p.Random {
		return protocol.Position{X: p.X, Y: p.Y}, nil
	}
	var cells []protocol.Position
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if w.mapSvc.Walkable(m.ID, x, y) {
				cells = append(cells, protocol.Position{X: x, Y: y})
			}
		}
	}
	if len(cells) == 0 {
		return protocol.Position{}, fmt.Errorf("map %q has no walkable cell", mapID)
	}
	return cells[rng.IntN(len(cells))], nil
}

// eventSpawnNPC places a fresh copy of an NPC template. A dead agent with the
// same id is replaced; a living one stays.
func (w *World) eventSpawnNPC(out []protocol.Message, a EventAction, rng *rand.Rand) []protocol.Message {
	tpl := w.events.npcs[a.NPC]
	if old := w.agents[tpl.ID]; old != nil {
		if old.Alive() {
			return append(out, w.inputError(protocol.ErrInvalidTarget, fmt.Sprintf("%s is already in the world", tpl.ID)))
		}
		out = w.dropAgent(out, old)
	}
	ag, err := tpl.agent(w.items)
	if err != nil {
		return append(out, w.inputError(protocol.ErrBadRequest, err.Error()))
	}
	if a.Map != "" {
		ag.MapID = a.Map
	}
	if a.Position != nil {
		p, err := w.eventPos(ag.MapID, a.Position, rng)
		if err != nil {
			return append(out, w.inputError(protocol.ErrInvalidTarget, err.Error()))
		}
		ag.Pos = p
	}
	if err := w.AddAgent(ag); err != nil {
		return append(out, w.inputError(protocol.ErrInvalidTarget, err.Error()))
	}
	out = append(out, w.system(fmt.Sprintf("%s arrives at %s on %s", ag.Name, ag.Pos, ag.MapID)))
	if a.Text != "" {
		out = append(out, w.speech(ag, a.Text))
	}
	return out
}

func (w *World) eventRemoveNPC(out []protocol.Message, id string) []protocol.Message {
	ag := w.agents[id]
	if ag == nil {
		return out
	}
	out = w.dropAgent(out, ag)
	return append(out, w.system(fmt.Sprintf("%s leaves %s", ag.Name, ag.MapID)))
}

// dropAgent removes a from the world, ending its trade first. Combat aimed at
// it expires on the next timer tick.
func (w *World) dropAgent(out []protocol.Message, a *Agent) []protocol.Message {
	if s := w.tradeFor(a.ID); s != nil {
		w.closeTrade(s)
		out = append(out, w.system(fmt.Sprintf("trade between %s and %s has ended", s.A, s.B)))
	}
	delete(w.agents, a.ID)
	return out
}

func (w *World) eventRemoveItem(out []protocol.Message, a EventAction, rng *rand.Rand) []protocol.Message {
	p, err := w.eventPos(a.Map, a.Position, rng)
	if err != nil {
		return append(out, w.inputError(protocol.ErrInvalidTarget, err.Error()))
	}
	item, n := w.items.Resolve(a.Item), max(1, a.Count)
	if !w.maps[a.Map].RemoveItem(p, item, n) {
		return append(out, w.inputError(protocol.ErrInvalidTarget, fmt.Sprintf("no %s x%d at %s on %s", item, n, p, a.Map)))
	}
	return append(out, w.system(fmt.Sprintf("%s x%d vanishes from %s on %s", item, n, p, a.Map)))
}

func (w *World) eventTeleport(out []protocol.Message, a EventAction, rng *rand.Rand) []protocol.Message {
	ag := w.agents[a.NPC]
	if ag == nil || !ag.Alive() {
		return out
	}
	p, err := w.eventPos(a.Map, a.Position, rng)
	if err != nil {
		return append(out, w.inputError(protocol.ErrInvalidTarget, err.Error()))
	}
	if !w.mapSvc.Walkable(a.Map, p.X, p.Y) {
		return append(out, w.inputError(protocol.ErrInvalidTarget, fmt.Sprintf("cannot teleport %s to %s on %s", ag.ID, p, a.Map)))
	}
	if s := w.tradeFor(ag.ID); s != nil {
		w.closeTrade(s)
		out = append(out, w.system(fmt.Sprintf("trade between %s and %s has ended", s.A, s.B)))
	}
	ag.MapID, ag.Pos = a.Map, p
	return append(out, w.system(fmt.Sprintf("%s is teleported to %s on %s", ag.Name, p, a.Map)))
}
