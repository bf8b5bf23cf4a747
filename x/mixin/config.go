package mixin

// DefaultCapacity bounds the hand-off queue. Producers beyond it block or get
// ErrFull; the generator drains at most one request per tick.
const DefaultCapacity = 1000

// Config holds mix-in queue configuration
type Config struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
	}
}
