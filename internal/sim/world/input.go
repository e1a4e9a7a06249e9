package world

import (
	"fmt"
	"strconv"
	"strings"

	"npcsim.ai/internal/protocol"
)

// Operator commands carried by INPUT events:
//
//	notice <text>
//	spawn <map> <x> <y> <item> <qty>
//	end_trade <agent>
func (w *World) applyInput(out []protocol.Message, text string) []protocol.Message {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return out
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "notice":
		body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), fields[0]))
		if body == "" {
			return append(out, w.inputError(protocol.ErrBadRequest, "usage: notice <text>"))
		}
		return append(out, w.system(body))
	case "spawn":
		return w.inputSpawn(out, args)
	case "end_trade":
		return w.inputEndTrade(out, args)
	}
	return append(out, w.inputError(protocol.ErrBadRequest, fmt.Sprintf("unknown command %q", cmd)))
}

func (w *World) inputError(code, text string) protocol.Message {
	m := w.msg(protocol.MsgError, nil)
	m.Code = code
	m.Text = text
	return m
}

func (w *World) inputSpawn(out []protocol.Message, args []string) []protocol.Message {
	if len(args) != 5 {
		return append(out, w.inputError(protocol.ErrBadRequest, "usage: spawn <map> <x> <y> <item> <qty>"))
	}
	if w.maps[args[0]] == nil {
		return append(out, w.inputError(protocol.ErrInvalidTarget, fmt.Sprintf("unknown map %q", args[0])))
	}
	x, errX := strconv.Atoi(args[1])
	y, errY := strconv.Atoi(args[2])
	n, errN := strconv.Atoi(args[4])
	if errX != nil || errY != nil || errN != nil || n <= 0 {
		return append(out, w.inputError(protocol.ErrBadRequest, "spawn: x, y and qty must be integers, qty > 0"))
	}
	return w.placeItem(out, args[0], protocol.Position{X: x, Y: y}, args[3], n)
}

// placeItem puts n of an item on a map cell. Failures become ERROR messages.
func (w *World) placeItem(out []protocol.Message, mapID string, p protocol.Position, name string, n int) []protocol.Message {
	m := w.maps[mapID]
	if m == nil {
		return append(out, w.inputError(protocol.ErrInvalidTarget, fmt.Sprintf("unknown map %q", mapID)))
	}
	item := w.items.Resolve(name)
	if w.items != nil {
		if _, ok := w.items.Get(item); !ok {
			return append(out, w.inputError(protocol.ErrInvalidTarget, fmt.Sprintf("unknown item %q", name)))
		}
	}
	if !m.AddItem(p, item, n) {
		return append(out, w.inputError(protocol.ErrInvalidTarget, fmt.Sprintf("%s is outside map %q", p, m.ID)))
	}
	return append(out, w.system(fmt.Sprintf("%s x%d appears at %s on %s", item, n, p, m.ID)))
}

func (w *World) inputEndTrade(out []protocol.Message, args []string) []protocol.Message {
	if len(args) != 1 {
		return append(out, w.inputError(protocol.ErrBadRequest, "usage: end_trade <agent>"))
	}
	s := w.tradeFor(args[0])
	if s == nil {
		return append(out, w.inputError(protocol.ErrInvalidTarget, fmt.Sprintf("%s is not trading", args[0])))
	}
	w.closeTrade(s)
	return append(out, w.system(fmt.Sprintf("trade between %s and %s has ended", s.A, s.B)))
}
