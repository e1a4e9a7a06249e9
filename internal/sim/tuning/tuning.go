package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid tuning")

// Move failure policies.
const (
	MoveFailureSilent = "silent"
	MoveFailureNotice = "notice"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int     `yaml:"tick_rate_hz"`
	GameSpeed          float64 `yaml:"game_speed"`
	VisibilityRadius   int     `yaml:"visibility_radius"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks"`
	Seed               int64   `yaml:"seed"`
	LogLevel           string  `yaml:"log_level"`

	Workers        int `yaml:"workers"`
	EventQueueSize int `yaml:"event_queue_size"`
	InputQueueSize int `yaml:"input_queue_size"`

	MoveFailure       string `yaml:"move_failure"`
	CombatMemoryTicks int    `yaml:"combat_memory_ticks"`
	TradeSessionTicks int    `yaml:"trade_session_ticks"`

	RateLimits RateLimits `yaml:"rate_limits"`
	Fallback   Fallback   `yaml:"fallback"`

	Greetings   bool `yaml:"greetings"`
	GreetChance int  `yaml:"greet_chance"`
}

type RateLimits struct {
	SayWindowTicks int `yaml:"say_window_ticks"`
	SayMax         int `yaml:"say_max"`
}

// Fallback holds the relative weights of the idle-time behaviors.
type Fallback struct {
	Wander int `yaml:"wander"`
	Pickup int `yaml:"pickup"`
	Idle   int `yaml:"idle"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         5,
		GameSpeed:          60,
		VisibilityRadius:   5,
		SnapshotEveryTicks: 3000,
		Seed:               1,
		LogLevel:           "info",
		Workers:            2,
		EventQueueSize:     256,
		InputQueueSize:     64,
		MoveFailure:        MoveFailureSilent,
		CombatMemoryTicks:  25,
		TradeSessionTicks:  150,
		RateLimits: RateLimits{
			SayWindowTicks: 50,
			SayMax:         5,
		},
		Fallback: Fallback{
			Wander: 3,
			Pickup: 2,
			Idle:   5,
		},
		GreetChance: 4,
	}
}

// Load overlays the YAML file at path on Defaults. Keys missing from the file
// keep their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("%w: tick_rate_hz must be > 0", ErrInvalid)
	case t.GameSpeed < 0:
		return fmt.Errorf("%w: game_speed must be >= 0", ErrInvalid)
	case t.VisibilityRadius < 0:
		return fmt.Errorf("%w: visibility_radius must be >= 0", ErrInvalid)
	case t.Workers <= 0:
		return fmt.Errorf("%w: workers must be > 0", ErrInvalid)
	case t.EventQueueSize <= 0 || t.InputQueueSize <= 0:
		return fmt.Errorf("%w: queue sizes must be > 0", ErrInvalid)
	case t.MoveFailure != MoveFailureSilent && t.MoveFailure != MoveFailureNotice:
		return fmt.Errorf("%w: move_failure must be %q or %q", ErrInvalid, MoveFailureSilent, MoveFailureNotice)
	case t.Fallback.Wander < 0 || t.Fallback.Pickup < 0 || t.Fallback.Idle < 0:
		return fmt.Errorf("%w: fallback weights must be >= 0", ErrInvalid)
	case t.Fallback.Wander+t.Fallback.Pickup+t.Fallback.Idle == 0:
		return fmt.Errorf("%w: fallback weights must not all be zero", ErrInvalid)
	case t.Greetings && t.GreetChance <= 0:
		return fmt.Errorf("%w: greet_chance must be > 0 when greetings are on", ErrInvalid)
	}
	return nil
}
