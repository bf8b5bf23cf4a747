package ledger

// Config holds entry log configuration
type Config struct {
	InitialCapacity    int `mapstructure:"initial_capacity"    yaml:"initial_capacity"`
	SubscriptionBuffer int `mapstructure:"subscription_buffer" yaml:"subscription_buffer"`
}

func DefaultConfig() Config {
	return Config{
		InitialCapacity:    4096,
		SubscriptionBuffer: 64,
	}
}
