package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/RealtimeKit/agent"
	"github.com/AltairaLabs/RealtimeKit/audio"
	"github.com/AltairaLabs/RealtimeKit/config"
	"github.com/AltairaLabs/RealtimeKit/logger"
	prommetrics "github.com/AltairaLabs/RealtimeKit/metrics/prometheus"
	"github.com/AltairaLabs/RealtimeKit/realtime"
	"github.com/AltairaLabs/RealtimeKit/resume"
	"github.com/AltairaLabs/RealtimeKit/screen"
	"github.com/AltairaLabs/RealtimeKit/telemetry"
)

const shutdownTimeout = 5 * time.Second

func runAgent(parent context.Context, cfg *config.Config, verbose bool, in io.Reader, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := logger.Configure(cfg.LoggingSpec()); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	if verbose {
		logger.SetVerbose(true)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.TelemetrySetup())
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()

	store, closeStore, err := buildResumeStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rtcfg, err := cfg.RealtimeConfig()
	if err != nil {
		return err
	}

	sessionLabel := uuid.NewString()[:8]
	recorder := prommetrics.NewRecorder(sessionLabel)
	defer recorder.Forget()

	opts := agent.Options{
		Client: realtime.Options{
			Metrics:        recorder,
			TracerProvider: tp,
			ResumeKey:      cfg.Resume.Key,
		},
		ScreenConfig:   cfg.ScreenStreamerConfig(),
		OnToolExecuted: prommetrics.RecordToolExecution,
	}
	if store != nil {
		opts.Client.Resume = store
	}
	opts.ScreenConfig.OnFrame = prommetrics.RecordScreenFrame

	if cfg.Audio.Enabled {
		engine, err := buildAudioEngine(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := engine.Close(); err != nil {
				logger.Warn("failed to close audio engine", "error", err)
			}
		}()
		opts.Client.Audio = engine
	}
	opts.Screen = buildScreenSource(cfg)

	session, err := agent.New(rtcfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
	}()
	attachConsole(session, out)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		exporter, err := prommetrics.NewExporter(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		g.Go(func() error { return exporter.Serve(gctx) })
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
	}

	lines := readLines(in)
	g.Go(func() error {
		err := repl(gctx, lines, out, session)
		if errors.Is(err, errQuit) {
			stop()
			return nil
		}
		return err
	})

	logger.Info("connecting", "model", realtime.ModelPath(cfg.Session.Model), "session", sessionLabel)
	session.Connect()

	err = g.Wait()
	session.Disconnect()
	return err
}

// buildResumeStore returns nil when resumption is off.
func buildResumeStore(cfg *config.Config) (resume.Store, func(), error) {
	noop := func() {}
	if !cfg.Resume.Enabled {
		return nil, noop, nil
	}
	switch cfg.Resume.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Resume.RedisAddr})
		var opts []resume.RedisOption
		if cfg.Resume.TTL > 0 {
			opts = append(opts, resume.WithTTL(cfg.Resume.TTL))
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}
		return resume.NewRedisStore(client, opts...), closeFn, nil
	case config.StoreMemory:
		return resume.NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown resume store %q", cfg.Resume.Store)
	}
}

func buildAudioEngine(cfg *config.Config) (*audio.Engine, error) {
	device, err := audio.DefaultDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	acfg := cfg.AudioEngineConfig()
	acfg.OnPlayback = prommetrics.RecordPlayback
	return audio.NewEngine(device, acfg), nil
}

// buildScreenSource returns nil when sharing is off or ffmpeg is missing.
func buildScreenSource(cfg *config.Config) screen.Source {
	if !cfg.Screen.Enabled {
		return nil
	}
	src := &screen.FFmpegSource{Display: cfg.Screen.Display}
	if err := src.Available(); err != nil {
		logger.Warn("screen sharing unavailable", "error", err)
		return nil
	}
	return src
}

// attachConsole prints replies and acknowledges tool calls.
func attachConsole(s *agent.Session, out io.Writer) {
	s.OnStatus(func(st realtime.Status) {
		fmt.Fprintf(out, "[%s]\n", st)
	})
	s.OnText(func(text string) {
		fmt.Fprintln(out, text)
	})
	s.RegisterToolExecutor(func(_ context.Context, name string, args json.RawMessage) (any, error) {
		fmt.Fprintf(out, "tool %s %s\n", name, args)
		return map[string]any{"acknowledged": true}, nil
	})
}
