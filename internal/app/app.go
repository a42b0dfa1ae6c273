// Package app assembles the interview-turn pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"interview-turn-service/internal/config"
	"interview-turn-service/internal/events"
	"interview-turn-service/internal/service/diagram"
	"interview-turn-service/internal/service/imaging"
	"interview-turn-service/internal/service/queue"
	"interview-turn-service/internal/service/recording"
	"interview-turn-service/internal/service/speech"
	"interview-turn-service/internal/service/speech/google"
	"interview-turn-service/internal/service/speech/mock"
	"interview-turn-service/internal/service/speech/push"
	"interview-turn-service/internal/service/submission"
	"interview-turn-service/internal/service/turn"
	"interview-turn-service/internal/store"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Engine    speech.Engine
	Turns     *turn.Controller
	Queue     *queue.Queue
	Mirror    *diagram.Mirror
	History   store.Repository
	Publisher *events.Publisher

	closers []func() error
}

// New constructs the pipeline. Recognition streams and background turns run on ctx.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg:    cfg,
		Logger: log.With().Str("component", "application").Logger(),
	}

	engine, err := a.newEngine(ctx)
	if err != nil {
		return nil, err
	}
	a.Engine = engine

	a.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		TopicTurns:   cfg.Kafka.TopicTurns,
		Principal:    cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Publisher.Close)

	a.History = store.Nop()
	if cfg.Store.DBPath != "" {
		db, err := store.NewSQLite(cfg.Store.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open turn history: %w", err)
		}
		a.History = db
	}
	a.closers = append(a.closers, a.History.Close)

	client, err := submission.New(submission.Config{
		BaseURL:           cfg.Analysis.BaseURL,
		AnalyzePath:       cfg.Analysis.AnalyzePath,
		Username:          cfg.Analysis.Username,
		Password:          cfg.Analysis.Password,
		Timeout:           cfg.Analysis.Timeout,
		DefaultExpression: cfg.Analysis.DefaultExpression,
		DefaultAnimation:  cfg.Analysis.DefaultAnimation,
	}, nil)
	if err != nil {
		a.Close()
		return nil, err
	}

	encoder := imaging.New(cfg.Diagram.Width, cfg.Diagram.Height).WithMaxSide(cfg.Diagram.MaxSide)
	capturer := diagram.NewCapturer(diagram.Config{
		Width:  cfg.Diagram.Width,
		Height: cfg.Diagram.Height,
		Label:  cfg.Diagram.PlaceholderLabel,
	}, encoder)

	a.Queue = queue.New()
	a.Mirror = diagram.NewMirror(cfg.Diagram.MaxSide)
	a.Turns = turn.New(ctx, turn.Deps{
		Engine:    engine,
		Capturer:  capturer,
		Encoder:   encoder,
		Submitter: client,
		Queue:     a.Queue,
		Publisher: a.Publisher,
		History:   a.History,
		Limits: recording.Limits{
			MaxFragments: cfg.RecordingLimits.MaxFragments,
			MaxDuration:  cfg.RecordingLimits.MaxDuration,
			DrainTimeout: cfg.RecordingLimits.DrainTimeout,
		},
	})
	a.Turns.SetSurface(a.Mirror)

	a.Logger.Info().
		Str("engine", engine.Name()).
		Str("analysisURL", cfg.Analysis.BaseURL).
		Bool("kafka", a.Publisher.Enabled()).
		Str("history", cfg.Store.DBPath).
		Msg("Interview turn service application created")
	return a, nil
}

// newEngine selects the speech engine named by the configured provider.
func (a *Application) newEngine(ctx context.Context) (speech.Engine, error) {
	sc := a.Cfg.Speech
	switch sc.Provider {
	case config.ProviderBrowser:
		return push.New(0), nil
	case config.ProviderMock:
		return mock.New(sc.MockInterval), nil
	case config.ProviderGoogle:
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = sc.LanguageCode
		gcfg.SampleRateHz = sc.SampleRateHz
		gcfg.InterimResults = sc.InterimResults
		gcfg.AudioEncoding = sc.AudioEncoding
		engine, err := google.New(ctx, gcfg, a.Logger.With().Str("engine", "google").Logger())
		if err != nil {
			return nil, fmt.Errorf("create google speech engine: %w", err)
		}
		a.closers = append(a.closers, engine.Shutdown)
		return engine, nil
	case config.ProviderNone:
		return speech.Unsupported(), nil
	default:
		return nil, fmt.Errorf("%w: %q", speech.ErrUnknownEngine, sc.Provider)
	}
}

// Ready reports whether turn history is reachable.
func (a *Application) Ready(ctx context.Context) error {
	return a.History.Ping(ctx)
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Interview turn service starting")
	return nil
}

// Shutdown waits for in-flight turns, then releases engines, writers and the store.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Interview turn service shutting down")

	var errs []error
	if a.Turns != nil {
		if err := a.Turns.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain turns: %w", err))
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases resources in reverse order of acquisition.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
