package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{APIKey: "k"}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultVoice, cfg.Voice)
	assert.Equal(t, []string{ModalityAudio}, cfg.ResponseModalities)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.KeepAliveInterval)
	assert.Equal(t, int64(1024*1024), cfg.MaxBufferedBytes)
	assert.Equal(t, []int{1000, 1003, 1008}, cfg.TerminalCloseCodes)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing key", func(c *Config) { c.APIKey = "" }},
		{"mixed modalities", func(c *Config) { c.ResponseModalities = []string{"TEXT", "AUDIO"} }},
		{"unknown modality", func(c *Config) { c.ResponseModalities = []string{"VIDEO"} }},
		{"negative delay", func(c *Config) { c.ReconnectBaseDelay = -time.Second }},
		{"nameless tool", func(c *Config) { c.Tools = []FunctionDeclaration{{Description: "x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{APIKey: "k"}
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfig_DialURL(t *testing.T) {
	cfg := Config{Endpoint: "wss://host/ws?alt=json", APIKey: "a b"}
	u, err := cfg.DialURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://host/ws?alt=json&key=a+b", u)
}

func TestBackoff(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Duration(0), Backoff(base, 0))
	assert.Equal(t, time.Second, Backoff(base, 1))
	assert.Equal(t, 2*time.Second, Backoff(base, 2))
	assert.Equal(t, 4*time.Second, Backoff(base, 3))
	assert.Equal(t, 250*time.Millisecond, Backoff(125*time.Millisecond, 2))
}

func TestBackoff_SaturatesInsteadOfOverflowing(t *testing.T) {
	base := time.Second
	assert.Equal(t, 512*time.Second, Backoff(base, 10))
	for _, attempt := range []int{11, 34, 40, 64, 1000} {
		assert.Equal(t, MaxReconnectDelay, Backoff(base, attempt), "attempt %d", attempt)
	}
	assert.Equal(t, MaxReconnectDelay, Backoff(time.Hour, 1))
	assert.Equal(t, time.Duration(0), Backoff(0, 5))
}

func TestModelPath(t *testing.T) {
	assert.Equal(t, "models/gemini-2.0-flash-exp", ModelPath("gemini-2.0-flash-exp"))
	assert.Equal(t, "models/x", ModelPath("models/x"))
	assert.Equal(t, DefaultModel, ModelPath(""))
}

func TestBuildSetup(t *testing.T) {
	cfg := Config{APIKey: "k", ResponseModalities: []string{ModalityText}, Voice: "Kore"}
	cfg.ApplyDefaults()
	setup := buildSetup(&cfg, "")
	assert.Nil(t, setup.GenerationConfig.SpeechConfig, "voice only applies to audio replies")
	assert.Nil(t, setup.SessionResumption)

	cfg.SessionResumption = true
	setup = buildSetup(&cfg, "")
	require.NotNil(t, setup.SessionResumption)
	assert.Empty(t, setup.SessionResumption.Handle)
}

func TestTruncateInlineData(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'A'
	}
	msg := map[string]interface{}{
		"parts": []interface{}{
			map[string]interface{}{"inlineData": map[string]interface{}{"data": string(long)}},
			map[string]interface{}{"data": "short"},
		},
	}
	truncateInlineData(msg)
	parts := msg["parts"].([]interface{})
	assert.Equal(t, "[200 bytes base64]", parts[0].(map[string]interface{})["inlineData"].(map[string]interface{})["data"])
	assert.Equal(t, "short", parts[1].(map[string]interface{})["data"])
}
