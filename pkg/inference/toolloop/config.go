package toolloop

// DefaultMaxIterations bounds the capability invocations of one run.
const DefaultMaxIterations = 10

// ApologyText is the terminal turn appended when a run hits the iteration cap.
const ApologyText = "Sorry, I ran into trouble processing your request completely."

// LoopConfig configures the agent loop.
type LoopConfig struct {
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations: DefaultMaxIterations,
	}
}

// WithMaxIterations sets the maximum number of capability invocations.
func (c LoopConfig) WithMaxIterations(maxIterations int) LoopConfig {
	c.MaxIterations = maxIterations
	return c
}

func (c LoopConfig) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}
