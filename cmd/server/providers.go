package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/fitmind/internal/catalog"
	"github.com/ashureev/fitmind/internal/chat"
	"github.com/ashureev/fitmind/internal/completion"
	"github.com/ashureev/fitmind/internal/config"
	"github.com/ashureev/fitmind/internal/events"
	"github.com/ashureev/fitmind/internal/store"
	"github.com/ashureev/fitmind/internal/trigger"
	"github.com/samber/do"
)

// newInjector registers every service provider. cfg, logger and the root
// context are provided as values.
func newInjector(ctx context.Context, cfg *config.Config, logger *slog.Logger) *do.Injector {
	di := do.New()
	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)
	do.ProvideValue(di, logger)

	do.Provide(di, newStore)
	do.Provide(di, newEventSink)
	do.Provide(di, newCatalog)
	do.Provide(di, newEvaluator)
	do.Provide(di, newCompletion)
	do.Provide(di, newChatManager)
	return di
}

func newStore(i *do.Injector) (*store.SQLiteStore, error) {
	cfg := do.MustInvoke[*config.Config](i)
	ctx := do.MustInvoke[context.Context](i)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)
	return repo, nil
}

func newEventSink(i *do.Injector) (events.Sink, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)

	var sinks events.Multi
	for _, name := range cfg.Events.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, events.NewLogSink(logger))
		case "ndjson":
			s, err := events.NewNDJSONSink(events.NDJSONConfig{Dir: cfg.Events.Dir, QueueSize: cfg.Events.QueueSize}, logger)
			if err != nil {
				_ = sinks.Close()
				return nil, fmt.Errorf("initialize ndjson event sink: %w", err)
			}
			sinks = append(sinks, s)
		case "kafka":
			s, err := events.NewKafkaSink(events.KafkaConfig{Brokers: cfg.Events.KafkaBrokers, Topic: cfg.Events.KafkaTopic}, logger)
			if err != nil {
				_ = sinks.Close()
				return nil, fmt.Errorf("initialize kafka event sink: %w", err)
			}
			sinks = append(sinks, s)
		}
	}
	if len(sinks) == 0 {
		return events.Nop{}, nil
	}
	slog.Info("Event sinks ready", "sinks", cfg.Events.Sinks)
	return sinks, nil
}

func newCatalog(i *do.Injector) (*catalog.Catalog, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return catalog.Load(cfg.CatalogPath)
}

func newEvaluator(i *do.Injector) (*trigger.Evaluator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	enc, err := trigger.ParseEncoding(cfg.Completion.Encoding)
	if err != nil {
		return nil, err
	}
	return trigger.NewEvaluator(enc, cfg.Completion.Marker)
}

func newCompletion(i *do.Injector) (completion.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	ctx := do.MustInvoke[context.Context](i)
	logger := do.MustInvoke[*slog.Logger](i)

	apiKey := cfg.Completion.APIKey
	if cfg.Completion.Provider == "gemini" {
		apiKey = cfg.Completion.GeminiAPIKey
	}
	return completion.New(ctx, completion.Options{
		Provider:    cfg.Completion.Provider,
		Model:       cfg.Completion.Model,
		APIKey:      apiKey,
		BaseURL:     cfg.Completion.BaseURL,
		SidecarAddr: cfg.Completion.SidecarAddr,
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
		Timeout:     cfg.Completion.Timeout,
	}, logger)
}

func newChatManager(i *do.Injector) (*chat.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	evaluator := do.MustInvoke[*trigger.Evaluator](i)

	prompt, err := completion.LoadSystemPrompt(cfg.Completion.SystemPromptPath, evaluator.OutputContract())
	if err != nil {
		return nil, err
	}
	client, err := do.Invoke[completion.Client](i)
	if err != nil {
		return nil, fmt.Errorf("initialize completion client: %w", err)
	}
	repo, err := do.Invoke[*store.SQLiteStore](i)
	if err != nil {
		return nil, err
	}
	sink, err := do.Invoke[events.Sink](i)
	if err != nil {
		return nil, err
	}
	cat, err := do.Invoke[*catalog.Catalog](i)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	return chat.NewManager(chat.Deps{
		Completion:   client,
		Evaluator:    evaluator,
		Store:        repo,
		Events:       sink,
		Catalog:      cat,
		SystemPrompt: prompt,
		Logger:       do.MustInvoke[*slog.Logger](i),
	}), nil
}
