package feed

import (
	"errors"
	"fmt"
	"time"
)

// Maximum samples per ingest request, matching the server's batch cap.
const maxBatchSize = 10000

// Config holds the feeder settings.
type Config struct {
	ServerURL string // Base URL of the driftwatch server
	StreamID  string // Push stream receiving the samples

	// Either a pre-issued access token, or credentials for a login.
	Token    string
	Username string
	Password string

	File   string // CSV input path; empty reads stdin
	Column int    // Zero-based column holding the value

	BatchSize     int
	FlushInterval time.Duration
	Rate          float64 // Max samples per second; 0 = unlimited
}

// Validate checks the configuration before a run.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server URL is required")
	}
	if c.StreamID == "" {
		return errors.New("stream ID is required")
	}
	if c.Token == "" && (c.Username == "" || c.Password == "") {
		return errors.New("either a token or username and password are required")
	}
	if c.Column < 0 {
		return fmt.Errorf("column %d must not be negative", c.Column)
	}
	if c.BatchSize < 1 || c.BatchSize > maxBatchSize {
		return fmt.Errorf("batch size %d outside [1, %d]", c.BatchSize, maxBatchSize)
	}
	if c.FlushInterval <= 0 {
		return errors.New("flush interval must be positive")
	}
	if c.Rate < 0 {
		return errors.New("rate must not be negative")
	}
	return nil
}
