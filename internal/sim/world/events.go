package world

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trigger types.
const (
	TriggerTime   = "time"
	TriggerRandom = "random"
)

// Action types.
const (
	ActionSpawnNPC   = "spawn_npc"
	ActionRemoveNPC  = "remove_npc"
	ActionMessage    = "message"
	ActionDialogue   = "dialogue"
	ActionAddItem    = "add_item"
	ActionRemoveItem = "remove_item"
	ActionTeleport   = "teleport"
)

var ErrBadEvents = errors.New("invalid event table")

// EventTable is the world's scripted events plus the NPCs they may spawn.
// It is configuration: the table never changes at runtime, and what has
// fired so far lives in the world.
type EventTable struct {
	NPCs   []SeedAgent      `yaml:"npcs"`
	Events []ScheduledEvent `yaml:"events"`

	npcs map[string]SeedAgent
}

// ScheduledEvent fires its actions, in order, when its trigger matches the
// game clock.
type ScheduledEvent struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Trigger     EventTrigger  `yaml:"trigger"`
	Actions     []EventAction `yaml:"actions"`

	// Repeatable defaults to true.
	Repeatable *bool `yaml:"repeatable"`
	// CooldownSeconds is game time between two firings.
	CooldownSeconds uint64 `yaml:"cooldown_seconds"`
	// MaxTriggers of 0 means no limit.
	MaxTriggers int `yaml:"max_triggers"`

	cron cronSpec
	// Seconds of day; to < 0 means no window.
	windowFrom, windowTo int
}

type EventTrigger struct {
	Type string `yaml:"type"`
	// Schedule is cron style "minute hour [day month weekday]". Only minute
	// and hour may be restricted. Time triggers only.
	Schedule string `yaml:"schedule"`
	// Chance is the probability in (0, 1] that a matching slot fires. For
	// time triggers 0 means always.
	Chance float64 `yaml:"chance"`
	// IntervalSeconds is the game time between rolls of a random trigger.
	IntervalSeconds uint64 `yaml:"interval_seconds"`
	// Days is an inclusive [first, last] day range.
	Days []uint32 `yaml:"days"`
	// Between is an inclusive ["HH:MM[:SS]", "HH:MM[:SS]"] time of day window.
	Between []string `yaml:"between"`
}

// EventAction fields used per type:
//
//	spawn_npc   npc [map] [position] [text]
//	remove_npc  npc
//	message     text
//	dialogue    npc text
//	add_item    map position item [count]
//	remove_item map position item [count]
//	teleport    npc map position
type EventAction struct {
	Type     string    `yaml:"type"`
	NPC      string    `yaml:"npc"`
	Map      string    `yaml:"map"`
	Position *EventPos `yaml:"position"`
	Item     string    `yaml:"item"`
	Count    int       `yaml:"count"`
	Text     string    `yaml:"text"`
}

// EventPos is either a fixed [x, y] cell or "random": any walkable cell of
// the target map.
type EventPos struct {
	X, Y   int
	Random bool
}

func (p *EventPos) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if strings.EqualFold(strings.TrimSpace(n.Value), "random") {
			p.Random = true
			return nil
		}
	case yaml.SequenceNode:
		var xy []int
		if err := n.Decode(&xy); err != nil {
			return err
		}
		if len(xy) == 2 {
			p.X, p.Y = xy[0], xy[1]
			return nil
		}
	}
	return fmt.Errorf("line %d: position must be [x, y] or random", n.Line)
}

func (e *ScheduledEvent) repeatable() bool { return e.Repeatable == nil || *e.Repeatable }

// LoadEventsIn reads events.yaml from configDir. A missing file is an empty
// table.
func LoadEventsIn(configDir string) (*EventTable, error) {
	t, err := LoadEvents(filepath.Join(configDir, "events.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		t = &EventTable{}
		return t, t.Compile()
	}
	return t, err
}

// LoadEvents reads and checks an event table.
func LoadEvents(path string) (*EventTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t EventTable
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	if err := t.Compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Compile checks the table and prepares it for matching. LoadEvents calls
// it; tables built in code must call it before use.
func (t *EventTable) Compile() error {
	t.npcs = make(map[string]SeedAgent, len(t.NPCs))
	for _, n := range t.NPCs {
		if n.ID == "" {
			return fmt.Errorf("%w: npc without id", ErrBadEvents)
		}
		if _, dup := t.npcs[n.ID]; dup {
			return fmt.Errorf("%w: duplicate npc %q", ErrBadEvents, n.ID)
		}
		t.npcs[n.ID] = n
	}
	seen := map[string]bool{}
	for i := range t.Events {
		e := &t.Events[i]
		if e.ID == "" {
			return fmt.Errorf("%w: event %d has no id", ErrBadEvents, i)
		}
		if seen[e.ID] {
			return fmt.Errorf("%w: duplicate event %q", ErrBadEvents, e.ID)
		}
		seen[e.ID] = true
		if err := e.compile(t.npcs); err != nil {
			return fmt.Errorf("%w: event %q: %v", ErrBadEvents, e.ID, err)
		}
	}
	return nil
}

func (e *ScheduledEvent) compile(npcs map[string]SeedAgent) error {
	tr := e.Trigger
	switch tr.Type {
	case TriggerTime:
		c, err := parseCron(tr.Schedule)
		if err != nil {
			return err
		}
		e.cron = c
		if tr.Chance < 0 || tr.Chance > 1 {
			return fmt.Errorf("chance %v outside [0, 1]", tr.Chance)
		}
	case TriggerRandom:
		if tr.IntervalSeconds == 0 {
			return fmt.Errorf("random trigger needs interval_seconds")
		}
		if tr.Chance <= 0 || tr.Chance > 1 {
			return fmt.Errorf("chance %v outside (0, 1]", tr.Chance)
		}
	default:
		return fmt.Errorf("unsupported trigger %q", tr.Type)
	}
	if len(tr.Days) != 0 && (len(tr.Days) != 2 || tr.Days[0] > tr.Days[1]) {
		return fmt.Errorf("days must be [first, last]")
	}
	e.windowFrom, e.windowTo = 0, -1
	if len(tr.Between) != 0 {
		if len(tr.Between) != 2 {
			return fmt.Errorf("between must be [from, to]")
		}
		from, err := parseClock(tr.Between[0])
		if err != nil {
			return err
		}
		to, err := parseClock(tr.Between[1])
		if err != nil {
			return err
		}
		e.windowFrom, e.windowTo = from, to
	}
	if e.MaxTriggers < 0 {
		return fmt.Errorf("max_triggers must be >= 0")
	}
	if len(e.Actions) == 0 {
		return fmt.Errorf("no actions")
	}
	for i, a := range e.Actions {
		if err := a.check(npcs); err != nil {
			return fmt.Errorf("action %d (%s): %v", i, a.Type, err)
		}
	}
	return nil
}

func (a EventAction) check(npcs map[string]SeedAgent) error {
	need := func(ok bool, what string) error {
		if !ok {
			return fmt.Errorf("missing %s", what)
		}
		return nil
	}
	switch a.Type {
	case ActionSpawnNPC:
		if _, ok := npcs[a.NPC]; !ok {
			return fmt.Errorf("no npc template %q", a.NPC)
		}
		return nil
	case ActionRemoveNPC:
		return need(a.NPC != "", "npc")
	case ActionMessage:
		return need(a.Text != "", "text")
	case ActionDialogue:
		return errors.Join(need(a.NPC != "", "npc"), need(a.Text != "", "text"))
	case ActionAddItem, ActionRemoveItem:
		if a.Count < 0 {
			return fmt.Errorf("count must be >= 0")
		}
		return errors.Join(need(a.Map != "", "map"), need(a.Position != nil, "position"), need(a.Item != "", "item"))
	case ActionTeleport:
		return errors.Join(need(a.NPC != "", "npc"), need(a.Map != "", "map"), need(a.Position != nil, "position"))
	}
	return fmt.Errorf("unknown action type")
}

// parseClock reads "HH:MM" or "HH:MM:SS" as seconds of day.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad time of day %q", s)
	}
	limits := []int{23, 59, 59}
	secs := 0
	for i, mul := range []int{3600, 60, 1} {
		if i >= len(parts) {
			break
		}
		v, err := strconv.Atoi(parts[i])
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("bad time of day %q", s)
		}
		secs += v * mul
	}
	return secs, nil
}
