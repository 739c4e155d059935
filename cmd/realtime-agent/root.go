package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/RealtimeKit/config"
	"github.com/AltairaLabs/RealtimeKit/logger"
)

// Flag names, also used as viper keys.
const (
	flagConfig       = "config"
	flagAPIKey       = "api-key"
	flagModel        = "model"
	flagVoice        = "voice"
	flagModalities   = "modalities"
	flagInstruction  = "system-instruction"
	flagNoAudio      = "no-audio"
	flagNoScreen     = "no-screen"
	flagMetricsAddr  = "metrics-addr"
	flagOTLPEndpoint = "otlp-endpoint"
	flagVerbose      = "verbose"
)

const envPrefix = "REALTIME"

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "realtime-agent",
		Short:        "Talk to a Gemini Live model from the terminal",
		SilenceUsage: true,
		Long: `realtime-agent opens a realtime session, streams the microphone and
(optionally) the screen, plays spoken replies and prints text replies.

Type a line to send it as a text turn. Commands:
  /toggle   connect or disconnect
  /screen   toggle screen sharing
  /status   print the session status
  /quit     exit`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if v.GetBool(flagVerbose) {
				logger.SetVerbose(true)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runAgent(cmd.Context(), cfg, v.GetBool(flagVerbose), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.PersistentFlags()
	f.StringP(flagConfig, "c", "", "Configuration file path (YAML)")
	f.String(flagAPIKey, "", "API key (default $GEMINI_API_KEY)")
	f.String(flagModel, "", "Model name")
	f.String(flagVoice, "", "Prebuilt voice name")
	f.StringSlice(flagModalities, nil, "Response modalities: AUDIO or TEXT")
	f.String(flagInstruction, "", "System instruction")
	f.Bool(flagNoAudio, false, "Disable microphone and speaker")
	f.Bool(flagNoScreen, false, "Disable screen sharing")
	f.String(flagMetricsAddr, "", "Prometheus listen address (overrides config)")
	f.String(flagOTLPEndpoint, "", "OTLP/HTTP traces endpoint")
	f.BoolP(flagVerbose, "v", false, "Enable debug logging")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(flagAPIKey, "GEMINI_API_KEY", envPrefix+"_API_KEY")

	cmd.AddCommand(newConfigCmd(v))
	return cmd
}

// loadConfig reads the optional file and applies flag and env overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	// A missing .env is fine; real env vars take precedence over it.
	loadDotEnv()

	cfg := config.Default()
	if path := v.GetString(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	applyOverrides(cfg, v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, v *viper.Viper) {
	if s := v.GetString(flagAPIKey); s != "" {
		cfg.Session.APIKey = s
	}
	if s := v.GetString(flagModel); s != "" {
		cfg.Session.Model = s
	}
	if s := v.GetString(flagVoice); s != "" {
		cfg.Session.Voice = s
	}
	if m := v.GetStringSlice(flagModalities); len(m) > 0 {
		for i := range m {
			m[i] = strings.ToUpper(strings.TrimSpace(m[i]))
		}
		cfg.Session.ResponseModalities = m
	}
	if s := v.GetString(flagInstruction); s != "" {
		cfg.Session.SystemInstruction = s
	}
	if v.GetBool(flagNoAudio) {
		cfg.Audio.Enabled = false
	}
	if v.GetBool(flagNoScreen) {
		cfg.Screen.Enabled = false
	}
	if v.IsSet(flagMetricsAddr) {
		cfg.Metrics.Addr = v.GetString(flagMetricsAddr)
	}
	if s := v.GetString(flagOTLPEndpoint); s != "" {
		cfg.Telemetry.Endpoint = s
	}
}
