package vigil

// Config holds configuration for the Vigil engine.
type Config struct {
	// RetryAttempts is the retry budget for sequenced administrative
	// operations. Defaults to 10.
	RetryAttempts int `json:"retry_attempts,omitempty"`

	// InstantReaping runs the reaper inline after a soft-delete instead
	// of scheduling it. Debug aid; defaults to false.
	InstantReaping bool `json:"instant_reaping,omitempty"`

	// StampDocumentSize stamps the serialized byte size of every write
	// into meta.sz. Defaults to true.
	StampDocumentSize *bool `json:"stamp_document_size,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryAttempts: 10,
	}
}

func (c Config) retryAttempts() int {
	if c.RetryAttempts > 0 {
		return c.RetryAttempts
	}

	return 10
}

func (c Config) stampDocumentSize() bool {
	return c.StampDocumentSize == nil || *c.StampDocumentSize
}
