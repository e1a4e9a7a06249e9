package world

import (
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID   string
	Seed int64

	VisibilityRadius int
	// GameSpeed is game seconds per real second.
	GameSpeed float64
	StartTime protocol.GameTime

	// MoveFailure is tuning.MoveFailureSilent or tuning.MoveFailureNotice.
	MoveFailure       string
	CombatMemoryTicks int
	TradeSessionTicks int

	RateLimits RateLimitConfig
}

type RateLimitConfig struct {
	SayWindowTicks int
	SayMax         int
}

// ConfigFromTuning copies the rule parameters out of a tuning file.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                id,
		Seed:              t.Seed,
		VisibilityRadius:  t.VisibilityRadius,
		GameSpeed:         t.GameSpeed,
		MoveFailure:       t.MoveFailure,
		CombatMemoryTicks: t.CombatMemoryTicks,
		TradeSessionTicks: t.TradeSessionTicks,
		RateLimits: RateLimitConfig{
			SayWindowTicks: t.RateLimits.SayWindowTicks,
			SayMax:         t.RateLimits.SayMax,
		},
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world"
	}
	if c.VisibilityRadius <= 0 {
		c.VisibilityRadius = 5
	}
	if c.GameSpeed < 0 {
		c.GameSpeed = 0
	}
	if c.StartTime.Day == 0 {
		c.StartTime = protocol.GameTime{Day: 1, Hour: 9}
	}
	if c.MoveFailure == "" {
		c.MoveFailure = tuning.MoveFailureSilent
	}
	if c.CombatMemoryTicks <= 0 {
		c.CombatMemoryTicks = 25
	}
	if c.TradeSessionTicks <= 0 {
		c.TradeSessionTicks = 150
	}
}
