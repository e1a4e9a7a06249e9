package protocol

import "fmt"

type Direction string

const (
	DirUp    Direction = "UP"
	DirDown  Direction = "DOWN"
	DirLeft  Direction = "LEFT"
	DirRight Direction = "RIGHT"
)

// Directions lists every direction in a fixed order; random choices index into it.
var Directions = []Direction{DirUp, DirDown, DirLeft, DirRight}

// Delta returns the cell offset for d. Y grows downwards.
func (d Direction) Delta() (dx, dy int, ok bool) {
	switch d {
	case DirUp:
		return 0, -1, true
	case DirDown:
		return 0, 1, true
	case DirLeft:
		return -1, 0, true
	case DirRight:
		return 1, 0, true
	}
	return 0, 0, false
}

// DirectionToward picks the axis step that closes the larger gap from a to b.
// ok is false when a == b.
func DirectionToward(a, b Position) (Direction, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	if dx == 0 && dy == 0 {
		return "", false
	}
	if abs(dx) >= abs(dy) {
		if dx > 0 {
			return DirRight, true
		}
		return DirLeft, true
	}
	if dy > 0 {
		return DirDown, true
	}
	return DirUp, true
}

func (d Direction) Opposite() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	case DirLeft:
		return DirRight
	case DirRight:
		return DirLeft
	}
	return d
}

type IntentKind string

const (
	IntentSpeak  IntentKind = "SPEAK"
	IntentMove   IntentKind = "MOVE"
	IntentPickup IntentKind = "PICKUP_ITEM"
	IntentUse    IntentKind = "USE_ITEM"
	IntentDrop   IntentKind = "DROP_ITEM"
	IntentTrade  IntentKind = "TRADE"
	IntentAttack IntentKind = "ATTACK"
	IntentIdle   IntentKind = "IDLE"
)

// Intent describes an action an agent wants to take. It has no side effects;
// the applier decides whether it happens.
type Intent struct {
	Kind      IntentKind `json:"kind"`
	Text      string     `json:"text,omitempty"`
	Direction Direction  `json:"direction,omitempty"`
	Item      string     `json:"item,omitempty"`
	Count     int        `json:"count,omitempty"`
	Target    string     `json:"target,omitempty"`
}

func Speak(text string) Intent         { return Intent{Kind: IntentSpeak, Text: text} }
func Move(d Direction) Intent          { return Intent{Kind: IntentMove, Direction: d} }
func Pickup(item string, n int) Intent { return Intent{Kind: IntentPickup, Item: item, Count: n} }
func Use(item string) Intent           { return Intent{Kind: IntentUse, Item: item} }
func Drop(item string, n int) Intent   { return Intent{Kind: IntentDrop, Item: item, Count: n} }
func Trade(target string) Intent       { return Intent{Kind: IntentTrade, Target: target} }
func Attack(target string) Intent      { return Intent{Kind: IntentAttack, Target: target} }
func Idle() Intent                     { return Intent{Kind: IntentIdle} }

// Describe renders the intent for logs.
func (i Intent) Describe() string {
	switch i.Kind {
	case IntentSpeak:
		return fmt.Sprintf("say %q", i.Text)
	case IntentMove:
		return fmt.Sprintf("move %s", i.Direction)
	case IntentPickup:
		return fmt.Sprintf("pick up %s x%d", i.Item, i.Count)
	case IntentUse:
		return fmt.Sprintf("use %s", i.Item)
	case IntentDrop:
		return fmt.Sprintf("drop %s x%d", i.Item, i.Count)
	case IntentTrade:
		return fmt.Sprintf("trade with %s", i.Target)
	case IntentAttack:
		return fmt.Sprintf("attack %s", i.Target)
	case IntentIdle:
		return "idle"
	}
	return fmt.Sprintf("unknown(%s)", i.Kind)
}
