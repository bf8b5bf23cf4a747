package cadence

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultTicksPerSecond fixes the default cadence at 160 ticks per second.
	DefaultTicksPerSecond = 160

	// DefaultInterval is the tick interval at the default cadence (6.25ms).
	DefaultInterval = time.Second / DefaultTicksPerSecond

	// DefaultTicksPerSlot groups ticks into 400ms slots.
	DefaultTicksPerSlot uint64 = 64

	// DefaultSlotsPerEpoch groups slots into two-day epochs.
	DefaultSlotsPerEpoch uint64 = 432_000

	// DefaultHashesPerTick keeps one hash per tick, so every recorded hash is
	// one chain step. Raise it toward FullRateHashesPerTick to make each tick
	// more expensive to forge.
	DefaultHashesPerTick uint64 = 1

	// DefaultHashesPerSecond is the sustained single-core SHA-256 rate the
	// full-rate tick sizing assumes, roughly a Xeon E5 class machine.
	DefaultHashesPerSecond uint64 = 2_000_000

	// FullRateHashesPerTick is the per-tick hash count of a generator that
	// hashes continuously between deadlines at DefaultHashesPerSecond.
	FullRateHashesPerTick = DefaultHashesPerSecond / DefaultTicksPerSecond
)

// Config fixes the tick cadence and the slot and epoch geometry derived from
// it. A generator and every verifier of its output must share these values.
type Config struct {
	Interval      time.Duration `mapstructure:"interval"        yaml:"interval"`
	TicksPerSlot  uint64        `mapstructure:"ticks_per_slot"  yaml:"ticks_per_slot"`
	SlotsPerEpoch uint64        `mapstructure:"slots_per_epoch" yaml:"slots_per_epoch"`
	HashesPerTick uint64        `mapstructure:"hashes_per_tick" yaml:"hashes_per_tick"`
}

func DefaultConfig() Config {
	return Config{
		Interval:      DefaultInterval,
		TicksPerSlot:  DefaultTicksPerSlot,
		SlotsPerEpoch: DefaultSlotsPerEpoch,
		HashesPerTick: DefaultHashesPerTick,
	}
}

// Validate rejects geometry the tick loop cannot run with.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.TicksPerSlot == 0 {
		return errors.New("ticks_per_slot must be positive")
	}
	if c.SlotsPerEpoch == 0 {
		return errors.New("slots_per_epoch must be positive")
	}
	if c.HashesPerTick == 0 {
		return errors.New("hashes_per_tick must be positive")
	}
	return nil
}

// UnmarshalYAML decodes the config with the interval given as a duration
// string ("6.25ms", "500us"). Absent keys keep their prior values, so
// unmarshaling over DefaultConfig() overrides only what the file names.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval      string  `yaml:"interval"`
		TicksPerSlot  *uint64 `yaml:"ticks_per_slot"`
		SlotsPerEpoch *uint64 `yaml:"slots_per_epoch"`
		HashesPerTick *uint64 `yaml:"hashes_per_tick"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("interval: %w", err)
		}
		c.Interval = d
	}
	if raw.TicksPerSlot != nil {
		c.TicksPerSlot = *raw.TicksPerSlot
	}
	if raw.SlotsPerEpoch != nil {
		c.SlotsPerEpoch = *raw.SlotsPerEpoch
	}
	if raw.HashesPerTick != nil {
		c.HashesPerTick = *raw.HashesPerTick
	}
	return nil
}

// SlotOf returns the slot index holding sequence number seq.
func (c Config) SlotOf(seq uint64) uint64 {
	return seq / c.TicksPerSlot
}

// EpochOf returns the epoch index holding the given slot.
func (c Config) EpochOf(slot uint64) uint64 {
	return slot / c.SlotsPerEpoch
}

// SlotDuration is the wall-clock length of one slot.
func (c Config) SlotDuration() time.Duration {
	return time.Duration(c.TicksPerSlot) * c.Interval
}
