package realtime

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Defaults for a Gemini Live session.
const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/" +
		"google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	DefaultModel                = "models/gemini-2.0-flash-exp"
	DefaultVoice                = "Puck"
	DefaultMaxReconnectAttempts = 3
	DefaultReconnectBaseDelay   = time.Second
	DefaultKeepAliveInterval    = 30 * time.Second
	DefaultMaxBufferedBytes     = 1024 * 1024

	// MaxReconnectDelay caps the exponential reconnect delay.
	MaxReconnectDelay = 10 * time.Minute
)

// Close codes that end a session without retry unless configured otherwise.
var DefaultTerminalCloseCodes = []int{1000, 1003, 1008}

// ErrInvalidConfig wraps configuration validation failures.
var ErrInvalidConfig = errors.New("invalid realtime config")

// Config configures a Client.
type Config struct {
	// Endpoint is the WebSocket URL without credentials.
	Endpoint string
	// APIKey is appended to Endpoint as the key query parameter.
	APIKey string

	Model              string
	Voice              string
	ResponseModalities []string
	SystemInstruction  string
	Tools              []FunctionDeclaration

	// MaxReconnectAttempts bounds automatic retries after a transient close.
	// Negative disables retries.
	MaxReconnectAttempts int
	// ReconnectBaseDelay is the delay before the first retry; each retry doubles it.
	ReconnectBaseDelay time.Duration
	// KeepAliveInterval is the period of empty client_content frames.
	KeepAliveInterval time.Duration
	// MaxBufferedBytes is the outbound backlog above which media is dropped.
	MaxBufferedBytes int64
	// TerminalCloseCodes never trigger a retry.
	TerminalCloseCodes []int

	// SessionResumption requests resumable sessions and resumes with the
	// last stored handle on reconnect.
	SessionResumption bool
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if len(c.ResponseModalities) == 0 {
		c.ResponseModalities = []string{ModalityAudio}
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.MaxBufferedBytes == 0 {
		c.MaxBufferedBytes = DefaultMaxBufferedBytes
	}
	if c.TerminalCloseCodes == nil {
		c.TerminalCloseCodes = append([]int(nil), DefaultTerminalCloseCodes...)
	}
}

// Validate checks a defaulted Config.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return fmt.Errorf("%w: endpoint: %v", ErrInvalidConfig, err)
	}
	if err := ValidateModalities(c.ResponseModalities); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ReconnectBaseDelay < 0 || c.KeepAliveInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	for _, t := range c.Tools {
		if t.Name == "" {
			return fmt.Errorf("%w: tool declaration without name", ErrInvalidConfig)
		}
	}
	return nil
}

// DialURL returns the endpoint with the API key embedded.
func (c *Config) DialURL() (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", c.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Backoff returns the delay before retry attempt (1-based): base × 2^(attempt−1),
// saturating at MaxReconnectDelay.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= MaxReconnectDelay/2 {
			return MaxReconnectDelay
		}
		d *= 2
	}
	return min(d, MaxReconnectDelay)
}
