package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zatekoja/patientinsights/internal/adapters/cache"
	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/domain/providers"
	"github.com/zatekoja/patientinsights/internal/evaluation"
	"github.com/zatekoja/patientinsights/internal/infrastructure/clients/openai"
	redisclient "github.com/zatekoja/patientinsights/internal/infrastructure/clients/redis"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
	"github.com/zatekoja/patientinsights/internal/rules"
	"github.com/zatekoja/patientinsights/pkg/config"
	"github.com/zatekoja/patientinsights/pkg/secrets"
)

// app holds the wired services shared by every command.
type app struct {
	cfg            *config.Config
	metrics        *observability.Metrics
	redis          *redisclient.Client
	narrativeCache *services.NarrativeCache
	analysis       *services.AnalysisService
	narratives     *services.NarrativeService
	explainer      *services.ExplainerService
	reports        *services.ReportService
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment, cfg.LogLevel)

	if cfg.Vault.Enabled {
		vault, err := secrets.NewVaultClient(secrets.VaultConfig{
			Addr:      cfg.Vault.Addr,
			Token:     cfg.Vault.Token,
			Namespace: cfg.Vault.Namespace,
			Mount:     cfg.Vault.Mount,
			Path:      cfg.Vault.Path,
			KVVersion: cfg.Vault.KVVersion,
			Timeout:   cfg.Vault.Timeout,
		})
		if err != nil {
			return nil, err
		}
		values, err := vault.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading vault secrets: %w", err)
		}
		applied := cfg.ApplySecrets(values)
		observability.GetLogger().Info().Str("path", cfg.Vault.Path).Int("applied", applied).Msg("vault secrets loaded")
	}
	return cfg, nil
}

// newApp wires the services. withModel=false skips the model client and
// the cache store, leaving only deterministic analysis.
func newApp(ctx context.Context, cfg *config.Config, withModel bool) (*app, error) {
	logger := observability.GetLogger()

	policy, err := rules.LoadPolicy(cfg.Analysis.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("loading rule policy: %w", err)
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	a := &app{
		cfg:      cfg,
		metrics:  metrics,
		analysis: services.NewAnalysisService(rules.DefaultEvaluators(policy), time.Now),
	}
	if !withModel {
		a.reports = services.NewReportService(a.analysis, nil, nil)
		return a, nil
	}

	guardrails, err := evaluation.NewGuardrails(evaluation.NewGuardrailConfig(cfg.Guardrail.MaxOutputChars, cfg.Guardrail.ExtraPatterns))
	if err != nil {
		return nil, fmt.Errorf("building guardrails: %w", err)
	}

	var store providers.CacheProvider
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		client, err := redisclient.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
		store = cache.NewRedisAdapter(client, cfg.Cache.KeyPrefix)
		logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("narrative cache backed by redis")
	default:
		store = cache.NewMemoryAdapter()
		logger.Info().Msg("narrative cache held in memory")
	}
	a.narrativeCache = services.NewNarrativeCache(store)

	var model providers.ModelProvider
	client, err := openai.NewClient(&cfg.OpenAI)
	if err != nil {
		logger.Warn().Err(err).Msg("language model disabled; generated content will be unavailable")
		model = unavailableModel{}
	} else {
		client.SetMetrics(metrics)
		model = client
		logger.Info().Str("model", client.Model()).Msg("language model configured")
	}

	callConfig := services.ModelCallConfig{
		Timeout:     cfg.OpenAI.Timeout,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
	}
	a.narratives = services.NewNarrativeService(model, a.narrativeCache, guardrails, callConfig)
	a.narratives.SetMetrics(metrics)
	a.explainer = services.NewExplainerService(model, guardrails, callConfig)
	a.explainer.SetMetrics(metrics)
	a.reports = services.NewReportService(a.analysis, a.narratives, a.explainer)
	return a, nil
}

func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// unavailableModel stands in when no API key is configured, so the
// deterministic endpoints keep working.
type unavailableModel struct{}

func (unavailableModel) Complete(ctx context.Context, req providers.ModelRequest) (*providers.ModelResponse, error) {
	return nil, fmt.Errorf("%w: %w", providers.ErrModelUnavailable, errors.New("no language model configured"))
}
