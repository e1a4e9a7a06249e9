package world

import (
	"math"

	"npcsim.ai/internal/protocol"
)

const secondsPerDay = 24 * 60 * 60

// Clock is the simulated time of day. It only moves when a timer tick is
// applied, so it is part of the deterministic state.
type Clock struct {
	// Seconds since Day 1 00:00:00.
	Seconds uint64
	// Game milliseconds not yet folded into Seconds.
	CarryMs int64
}

func ClockAt(t protocol.GameTime) Clock {
	day := uint64(t.Day)
	if day == 0 {
		day = 1
	}
	return Clock{Seconds: (day-1)*secondsPerDay + uint64(t.Hour)*3600 + uint64(t.Minute)*60 + uint64(t.Second)}
}

func (c Clock) Time() protocol.GameTime {
	s := c.Seconds
	return protocol.GameTime{
		Day:    uint32(s/secondsPerDay) + 1,
		Hour:   uint8(s % secondsPerDay / 3600),
		Minute: uint8(s % 3600 / 60),
		Second: uint8(s % 60),
	}
}

// Advance moves the clock by elapsedMs of real time scaled by speed and
// reports whether a new day started.
func (c *Clock) Advance(elapsedMs int64, speed float64) (newDay bool) {
	if elapsedMs <= 0 || speed <= 0 {
		return false
	}
	before := c.Seconds / secondsPerDay
	c.CarryMs += int64(math.Round(float64(elapsedMs) * speed))
	c.Seconds += uint64(c.CarryMs / 1000)
	c.CarryMs %= 1000
	return c.Seconds/secondsPerDay != before
}
