package main

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voicethink/coach/internal/ai"
	"github.com/voicethink/coach/internal/config"
	"github.com/voicethink/coach/internal/conversation"
	"github.com/voicethink/coach/internal/db"
	"github.com/voicethink/coach/internal/httpapi"
	"github.com/voicethink/coach/internal/httpapi/handlers"
	"github.com/voicethink/coach/internal/interactions"
	"github.com/voicethink/coach/internal/profile"
	"github.com/voicethink/coach/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ilog := interactions.NewRedisLog(rdb)

	// Provider registry (route by provider name + model)
	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIChatModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, m), nil
	})

	provider, err := reg.Get(context.Background(), "openai", cfg.OpenAIChatModel)
	if err != nil {
		logger.Fatal("resolve ai provider", zap.Error(err))
	}

	// Goal extraction wants deterministic output, so it gets its own
	// zero-temperature provider.
	extractionProvider := ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIChatModel).
		WithTemperature(0)

	realtime := ai.NewRealtimeClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIRealtimeModel)

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Fatal("rabbit connect", zap.Error(err))
	}
	defer pub.Close()

	profiles := profile.NewRepo(gdb)
	resolver := profile.NewResolver(profiles)
	metrics := profile.NewEngine(profiles, ilog)
	extractor := profile.NewExtractor(profiles, extractionProvider, logger)

	convRepo := conversation.NewRepo(gdb)
	orch := conversation.NewOrchestrator(
		convRepo,
		profiles,
		ilog,
		provider,
		extractor,
		metrics,
		cfg.ConversationHistorySize,
		logger,
	)

	h := handlers.NewHandler(handlers.Deps{
		DB:       gdb,
		Cfg:      cfg,
		Logger:   logger,
		Resolver: resolver,
		Profiles: profiles,
		Conv:     convRepo,
		Orch:     orch,
		Realtime: realtime,
		Rabbit:   pub,
	})

	r := httpapi.NewRouter(h)

	logger.Info("server starting", zap.String("addr", cfg.HTTPAddr))
	if err := r.Run(cfg.HTTPAddr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
