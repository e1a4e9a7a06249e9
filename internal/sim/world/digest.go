package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// StateDigest hashes every piece of authoritative state in a fixed order.
// Two worlds with equal digests behave identically under the same events.
func StateDigest(w *World) string {
	h := sha256.New()
	var tmp [8]byte

	writeString(h, w.cfg.ID)
	digestWriteU64(h, &tmp, w.tick)
	digestWriteU64(h, &tmp, w.clock.Seconds)
	digestWriteI64(h, &tmp, w.clock.CarryMs)
	digestFloat(h, &tmp, w.cfg.GameSpeed)
	digestWriteU64(h, &tmp, w.nextTradeNum)

	w.digestMaps(h, &tmp)
	w.digestAgents(h, &tmp)
	w.digestTrades(h, &tmp)
	w.digestEventRuns(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestMaps(h hashWriter, tmp *[8]byte) {
	for _, id := range w.mapIDs() {
		m := w.maps[id]
		writeString(h, m.ID)
		digestWriteI64(h, tmp, int64(m.Width))
		digestWriteI64(h, tmp, int64(m.Height))
		for _, t := range m.terrain {
			writeString(h, t.Kind)
			h.Write([]byte{boolByte(t.Walkable)})
		}
		for _, p := range m.itemCells() {
			digestWriteI64(h, tmp, int64(p.X))
			digestWriteI64(h, tmp, int64(p.Y))
			writeItemMap(h, tmp, m.items[p])
		}
	}
}

func (w *World) digestAgents(h hashWriter, tmp *[8]byte) {
	for _, id := range w.AgentIDs() {
		a := w.agents[id]
		writeString(h, a.ID)
		writeString(h, string(a.Kind))
		writeString(h, a.MapID)
		digestWriteI64(h, tmp, int64(a.Pos.X))
		digestWriteI64(h, tmp, int64(a.Pos.Y))
		digestWriteI64(h, tmp, int64(a.HP))
		digestWriteI64(h, tmp, int64(a.MaxHP))
		digestWriteI64(h, tmp, int64(a.MP))
		digestWriteI64(h, tmp, int64(a.MaxMP))
		writeItemMap(h, tmp, a.Inventory)
		h.Write([]byte{boolByte(a.Interacting), boolByte(a.PartyLeader), boolByte(a.Dead)})
		writeString(h, a.PartyID)
		writeString(h, a.CombatTarget)
		digestWriteU64(h, tmp, a.CombatUntil)

		kinds := make([]string, 0, len(a.rl))
		for k := range a.rl {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			rw := a.rl[k]
			writeString(h, k)
			digestWriteU64(h, tmp, rw.StartTick)
			digestWriteI64(h, tmp, int64(rw.Count))
		}
	}
}

func (w *World) digestTrades(h hashWriter, tmp *[8]byte) {
	for _, id := range w.tradeIDs() {
		s := w.trades[id]
		writeString(h, s.ID)
		writeString(h, s.A)
		writeString(h, s.B)
		digestWriteU64(h, tmp, s.OpenedTick)
		digestWriteU64(h, tmp, s.ExpiresTick)
	}
}

func (w *World) digestEventRuns(h hashWriter, tmp *[8]byte) {
	for _, id := range w.eventRunIDs() {
		r := w.eventRuns[id]
		writeString(h, id)
		digestWriteI64(h, tmp, int64(r.Count))
		digestWriteU64(h, tmp, r.LastFired)
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

// writeString is length-prefixed so adjacent strings cannot collide.
func writeString(h hashWriter, s string) {
	var tmp [8]byte
	digestWriteU64(h, &tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeItemMap(h hashWriter, tmp *[8]byte, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		writeString(h, k)
		digestWriteI64(h, tmp, int64(m[k]))
	}
}

func digestFloat(h hashWriter, tmp *[8]byte, f float64) {
	digestWriteU64(h, tmp, math.Float64bits(f))
}
