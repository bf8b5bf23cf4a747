package metrics

// Common buckets for different types of measurements
var (
	// TickDurationBuckets for single hash-chain ticks (10µs to 1s; the default
	// cadence is 6.25ms, so the interesting range sits well under 100ms)
	TickDurationBuckets = []float64{
		.00001, .00005, .0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1,
	}

	// SizeBuckets for mix-in payload sizes (16B to 1MB)
	SizeBuckets = []float64{
		16, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576,
	}

	// VerifyBuckets for verification passes over entry ranges (100µs to 1min)
	VerifyBuckets = []float64{
		.0001, .001, .01, .1, .5, 1, 5, 15, 30, 60,
	}
)
