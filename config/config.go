// Package config loads the realtime agent configuration from YAML.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/RealtimeKit/audio"
	"github.com/AltairaLabs/RealtimeKit/logger"
	"github.com/AltairaLabs/RealtimeKit/realtime"
	"github.com/AltairaLabs/RealtimeKit/screen"
	"github.com/AltairaLabs/RealtimeKit/telemetry"
)

// Resumption store types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

const defaultMetricsAddr = ":9464"

// Config is the root of the configuration file.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Audio     AudioConfig     `yaml:"audio"`
	Screen    ScreenConfig    `yaml:"screen"`
	Resume    ResumeConfig    `yaml:"resume"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SessionConfig describes the remote session.
type SessionConfig struct {
	Endpoint           string        `yaml:"endpoint,omitempty"`
	APIKey             string        `yaml:"api_key,omitempty"`
	Model              string        `yaml:"model,omitempty"`
	Voice              string        `yaml:"voice,omitempty"`
	ResponseModalities []string      `yaml:"response_modalities,omitempty"`
	SystemInstruction  string        `yaml:"system_instruction,omitempty"`
	Tools              []ToolConfig  `yaml:"tools,omitempty"`
	KeepAliveInterval  time.Duration `yaml:"keep_alive_interval,omitempty"`
	MaxBufferedBytes   int64         `yaml:"max_buffered_bytes,omitempty"`
}

// ToolConfig declares one tool offered to the model.
type ToolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
}

// ReconnectConfig is the retry policy. A negative MaxAttempts disables retries.
type ReconnectConfig struct {
	MaxAttempts        int           `yaml:"max_attempts,omitempty"`
	BaseDelay          time.Duration `yaml:"base_delay,omitempty"`
	TerminalCloseCodes []int         `yaml:"terminal_close_codes,omitempty"`
}

// AudioConfig configures microphone and speaker.
type AudioConfig struct {
	Enabled          bool `yaml:"enabled"`
	DeviceSampleRate int  `yaml:"device_sample_rate,omitempty"`
	SendSampleRate   int  `yaml:"send_sample_rate,omitempty"`
	BlockSize        int  `yaml:"block_size,omitempty"`
}

// ScreenConfig configures screen sharing.
type ScreenConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval,omitempty"`
	MaxWidth int           `yaml:"max_width,omitempty"`
	Quality  int           `yaml:"quality,omitempty"`
	Display  string        `yaml:"display,omitempty"`
}

// ResumeConfig configures session resumption.
type ResumeConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Store     string        `yaml:"store,omitempty"`
	RedisAddr string        `yaml:"redis_addr,omitempty"`
	Key       string        `yaml:"key,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
}

// MetricsConfig configures the Prometheus exporter. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TelemetryConfig configures trace export. An empty Endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint,omitempty"`
	ServiceName string  `yaml:"service_name,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level        string            `yaml:"level,omitempty"`
	Format       string            `yaml:"format,omitempty"`
	CommonFields map[string]string `yaml:"common_fields,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Audio:   AudioConfig{Enabled: true},
		Screen:  ScreenConfig{Enabled: true},
		Resume:  ResumeConfig{Store: StoreMemory},
		Metrics: MetricsConfig{Addr: defaultMetricsAddr},
		Logging: LoggingConfig{Level: "info", Format: logger.FormatText},
	}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads a YAML file on top of Default and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result. The API key
// may be left out and supplied later.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.validate(false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	s := &c.Session
	if s.Endpoint == "" {
		s.Endpoint = realtime.DefaultEndpoint
	}
	if s.Model == "" {
		s.Model = realtime.DefaultModel
	}
	if s.Voice == "" {
		s.Voice = realtime.DefaultVoice
	}
	if len(s.ResponseModalities) == 0 {
		s.ResponseModalities = []string{realtime.ModalityAudio}
	}
	if s.KeepAliveInterval == 0 {
		s.KeepAliveInterval = realtime.DefaultKeepAliveInterval
	}
	if s.MaxBufferedBytes == 0 {
		s.MaxBufferedBytes = realtime.DefaultMaxBufferedBytes
	}

	r := &c.Reconnect
	if r.MaxAttempts == 0 {
		r.MaxAttempts = realtime.DefaultMaxReconnectAttempts
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = realtime.DefaultReconnectBaseDelay
	}
	if r.TerminalCloseCodes == nil {
		r.TerminalCloseCodes = append([]int(nil), realtime.DefaultTerminalCloseCodes...)
	}

	if c.Audio.DeviceSampleRate == 0 {
		c.Audio.DeviceSampleRate = audio.DefaultDeviceSampleRate
	}
	if c.Audio.SendSampleRate == 0 {
		c.Audio.SendSampleRate = audio.DefaultSendSampleRate
	}
	if c.Audio.BlockSize == 0 {
		c.Audio.BlockSize = audio.DefaultBlockSize
	}

	if c.Screen.Interval == 0 {
		c.Screen.Interval = screen.DefaultInterval
	}
	if c.Screen.MaxWidth == 0 {
		c.Screen.MaxWidth = screen.DefaultMaxWidth
	}
	if c.Screen.Quality == 0 {
		c.Screen.Quality = screen.DefaultQuality
	}

	if c.Resume.Store == "" {
		c.Resume.Store = StoreMemory
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = telemetry.DefaultServiceName
	}
}

// Validate checks a complete configuration, including the API key.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(requireKey bool) error {
	var errs []error
	if requireKey && c.Session.APIKey == "" {
		errs = append(errs, errors.New("session.api_key is required"))
	}
	if err := realtime.ValidateModalities(c.Session.ResponseModalities); err != nil {
		errs = append(errs, fmt.Errorf("session.response_modalities: %w", err))
	}
	for i, t := range c.Session.Tools {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("session.tools[%d]: name is required", i))
		}
	}
	if c.Reconnect.BaseDelay < 0 {
		errs = append(errs, errors.New("reconnect.base_delay must not be negative"))
	}
	if c.Session.KeepAliveInterval < 0 {
		errs = append(errs, errors.New("session.keep_alive_interval must not be negative"))
	}
	if c.Audio.SendSampleRate > c.Audio.DeviceSampleRate {
		errs = append(errs, errors.New("audio.send_sample_rate must not exceed audio.device_sample_rate"))
	}
	if c.Screen.Quality < 1 || c.Screen.Quality > 100 {
		errs = append(errs, errors.New("screen.quality must be between 1 and 100"))
	}
	switch c.Resume.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Resume.Enabled && c.Resume.RedisAddr == "" {
			errs = append(errs, errors.New("resume.redis_addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("resume.store: unknown store %q", c.Resume.Store))
	}
	switch c.Logging.Format {
	case "", logger.FormatJSON, logger.FormatText:
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", realtime.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RealtimeConfig maps the session and reconnect sections onto realtime.Config.
func (c *Config) RealtimeConfig() (realtime.Config, error) {
	tools := make([]realtime.FunctionDeclaration, 0, len(c.Session.Tools))
	for _, t := range c.Session.Tools {
		decl := realtime.FunctionDeclaration{Name: t.Name, Description: t.Description}
		if t.Parameters != nil {
			params, err := json.Marshal(t.Parameters)
			if err != nil {
				return realtime.Config{}, fmt.Errorf("tool %s parameters: %w", t.Name, err)
			}
			decl.Parameters = params
		}
		tools = append(tools, decl)
	}

	return realtime.Config{
		Endpoint:             c.Session.Endpoint,
		APIKey:               c.Session.APIKey,
		Model:                c.Session.Model,
		Voice:                c.Session.Voice,
		ResponseModalities:   c.Session.ResponseModalities,
		SystemInstruction:    c.Session.SystemInstruction,
		Tools:                tools,
		MaxReconnectAttempts: c.Reconnect.MaxAttempts,
		ReconnectBaseDelay:   c.Reconnect.BaseDelay,
		KeepAliveInterval:    c.Session.KeepAliveInterval,
		MaxBufferedBytes:     c.Session.MaxBufferedBytes,
		TerminalCloseCodes:   c.Reconnect.TerminalCloseCodes,
		SessionResumption:    c.Resume.Enabled,
	}, nil
}

// AudioEngineConfig maps the audio section onto audio.Config.
func (c *Config) AudioEngineConfig() audio.Config {
	return audio.Config{
		DeviceSampleRate: c.Audio.DeviceSampleRate,
		SendSampleRate:   c.Audio.SendSampleRate,
		BlockSize:        c.Audio.BlockSize,
	}
}

// ScreenStreamerConfig maps the screen section onto screen.Config.
func (c *Config) ScreenStreamerConfig() screen.Config {
	return screen.Config{
		Interval: c.Screen.Interval,
		MaxWidth: c.Screen.MaxWidth,
		Quality:  c.Screen.Quality,
		Disabled: !c.Screen.Enabled,
	}
}

// TelemetrySetup maps the telemetry section onto telemetry.Config.
func (c *Config) TelemetrySetup() telemetry.Config {
	return telemetry.Config{
		Endpoint:    c.Telemetry.Endpoint,
		ServiceName: c.Telemetry.ServiceName,
		SampleRatio: c.Telemetry.SampleRatio,
	}
}

// LoggingSpec maps the logging section onto logger.LoggingConfigSpec.
func (c *Config) LoggingSpec() *logger.LoggingConfigSpec {
	return &logger.LoggingConfigSpec{
		DefaultLevel: c.Logging.Level,
		Format:       c.Logging.Format,
		CommonFields: c.Logging.CommonFields,
	}
}
