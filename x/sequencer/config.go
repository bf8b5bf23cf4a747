package sequencer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rvnrstnsyh/rhythm/x/cadence"
	"github.com/rvnrstnsyh/rhythm/x/digest"
	"github.com/rvnrstnsyh/rhythm/x/ledger"
	"github.com/rvnrstnsyh/rhythm/x/mixin"
)

// Config aggregates configuration for the sequencer and the components it
// owns.
type Config struct {
	// Algorithm names the chain hash function: "SHA-256" or "BLAKE3".
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm"`

	// Seed feeds genesis derivation: the chain starts at H(seed).
	Seed string `mapstructure:"seed" yaml:"seed"`

	// GenesisHash, when set, is a hex digest used verbatim as the genesis
	// hash. It overrides Seed.
	GenesisHash string `mapstructure:"genesis_hash" yaml:"genesis_hash"`

	Cadence cadence.Config `mapstructure:"cadence" yaml:"cadence"`
	Queue   mixin.Config   `mapstructure:"queue"   yaml:"queue"`
	Ledger  ledger.Config  `mapstructure:"ledger"  yaml:"ledger"`
}

// DefaultConfig returns production defaults: SHA-256, the conventional
// all-zeros seed, and the standard 160 ticks-per-second cadence.
func DefaultConfig() Config {
	return Config{
		Algorithm: digest.SHA256.String(),
		Seed:      string(digest.DefaultSeed),
		Cadence:   cadence.DefaultConfig(),
		Queue:     mixin.DefaultConfig(),
		Ledger:    ledger.DefaultConfig(),
	}
}

// Validate rejects configuration the sequencer cannot run with.
func (c Config) Validate() error {
	if _, err := digest.ParseAlgorithm(c.Algorithm); err != nil {
		return err
	}
	if _, err := c.Genesis(); err != nil {
		return err
	}
	if err := c.Cadence.Validate(); err != nil {
		return fmt.Errorf("cadence: %w", err)
	}
	return nil
}

// Genesis resolves the configured genesis hash: an explicit GenesisHash wins,
// otherwise the seed (the default seed when empty) is hashed.
func (c Config) Genesis() (digest.Hash, error) {
	algo, err := digest.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return digest.Hash{}, err
	}

	if c.GenesisHash != "" {
		var h digest.Hash
		if err := h.UnmarshalText([]byte(c.GenesisHash)); err != nil {
			return digest.Hash{}, fmt.Errorf("genesis_hash: %w", err)
		}
		return h, nil
	}

	seed := []byte(c.Seed)
	if len(seed) == 0 {
		seed = digest.DefaultSeed
	}
	return algo.Seed(seed), nil
}

// LoadFile reads a YAML config file over the defaults and validates the
// result.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
