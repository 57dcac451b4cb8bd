package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/config"
	"github.com/nuevpro/ventas/internal/api/handlers"
	"github.com/nuevpro/ventas/internal/api/middleware"
	"github.com/nuevpro/ventas/internal/api/routes"
	"github.com/nuevpro/ventas/internal/cache"
	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/logger"
	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/providers/embed"
	"github.com/nuevpro/ventas/internal/providers/llm"
	"github.com/nuevpro/ventas/internal/providers/stt"
	"github.com/nuevpro/ventas/internal/providers/tts"
	"github.com/nuevpro/ventas/internal/providers/web"
	"github.com/nuevpro/ventas/internal/ratelimit"
	mongorepo "github.com/nuevpro/ventas/internal/repositories/mongo"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/services"
	"github.com/nuevpro/ventas/internal/storage"
	"github.com/nuevpro/ventas/internal/voices"
	"github.com/nuevpro/ventas/internal/workers"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadApp()
	log := logger.New(cfg.LogLevel)

	// Init PostgreSQL
	if err := config.InitPostgres(log); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	if err := pgrepo.Migrate(config.PostgresDB); err != nil {
		log.WithError(err).Fatal("PostgreSQL migration error")
	}
	log.Info("PostgreSQL connected")

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(cfg.MongoDB); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	mdb, err := config.MongoDatabase(cfg.MongoDB)
	if err != nil {
		log.WithError(err).Fatal("MongoDB database error")
	}
	log.Info("MongoDB connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := initProviders(rootCtx, cfg, log)
	defer p.close()

	rdb := config.RedisClient
	respCache := cache.NewRedisCache(rdb, "ventas")
	bus := events.NewRedisBus(rdb)
	aiLimiter := ratelimit.NewRedisLimiter(rdb, "ratelimit:ai", cfg.AIRateLimit, cfg.AIRateWindow)

	// Repositories
	sessionRepo := pgrepo.NewSessionRepo(config.PostgresDB)
	scenarioRepo := pgrepo.NewScenarioRepo(config.PostgresDB)
	evalRepo := pgrepo.NewEvaluationRepo(config.PostgresDB)
	knowledgeRepo := pgrepo.NewKnowledgeRepo(config.PostgresDB)
	statsRepo := pgrepo.NewStatsRepo(config.PostgresDB)
	challengeRepo := pgrepo.NewChallengeRepo(config.PostgresDB)
	bufferRepo := mongorepo.NewBufferRepo(mdb)
	prefsRepo := mongorepo.NewPreferencesRepo(mdb)

	// Services
	selector := voices.NewSelector()
	sessionSvc := services.NewSessionService(sessionRepo, scenarioRepo, selector, log)
	speechSvc := services.NewSpeechService(p.tts, p.stt, cfg.TTSLanguage)
	knowledgeSvc := services.NewKnowledgeService(knowledgeRepo, p.uploader, web.NewHTTPFetcher(cfg.WebFetchTimeout), p.llm, embed.NewHashing(models.EmbeddingDims), log)
	counterpartSvc := services.NewCounterpartService(services.CounterpartDeps{
		Sessions:  sessionSvc,
		Scenarios: scenarioRepo,
		Knowledge: knowledgeSvc,
		Speech:    speechSvc,
		Uploader:  p.uploader,
		LLM:       p.llm,
		Cache:     respCache,
		Bus:       bus,
		Log:       log,
	})
	evaluationSvc := services.NewEvaluationService(sessionSvc, scenarioRepo, evalRepo, p.llm, log)
	gamificationSvc := services.NewGamificationService(statsRepo, bus, log)
	challengeSvc := services.NewChallengeService(challengeRepo, gamificationSvc, bus, log)
	completionSvc := services.NewCompletionService(sessionSvc, evaluationSvc, gamificationSvc, challengeSvc, log)
	scenarioSvc := services.NewScenarioService(scenarioRepo, respCache, log)
	prefsSvc := services.NewPreferencesService(prefsRepo, respCache, log)
	bufferSvc := services.NewBufferService(bufferRepo, cfg.BufferTTL)

	// Audio workers
	pool := &workers.AudioWorkerPool{
		Redis:      rdb,
		Processor:  workers.NewAudioProcessor(sessionSvc, counterpartSvc, speechSvc, bufferSvc, bus, log),
		NumWorkers: cfg.AudioWorkers,
		Logger:     log,
	}
	if err := pool.Start(rootCtx); err != nil {
		log.WithError(err).Fatal("audio worker pool error")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Session:      handlers.NewSessionHandler(sessionSvc, completionSvc, evaluationSvc),
		Conversation: handlers.NewConversationHandler(sessionSvc, counterpartSvc),
		Knowledge:    handlers.NewKnowledgeHandler(knowledgeSvc),
		Profile:      handlers.NewProfileHandler(gamificationSvc, prefsSvc),
		Voice:        handlers.NewVoiceHandler(selector, speechSvc),
		Scenario:     handlers.NewScenarioHandler(scenarioSvc),
		Challenge:    handlers.NewChallengeHandler(challengeSvc),
		WS: handlers.NewWSHandler(handlers.WSDeps{
			Sessions:       sessionSvc,
			Completion:     completionSvc,
			Buffers:        bufferSvc,
			Queue:          workers.NewRedisAudioQueue(rdb, workers.DefaultStream),
			Bus:            bus,
			Log:            log,
			AllowedOrigins: cfg.CORSOrigins,
		}),
		JWT:         middleware.JWTConfigFromEnv(),
		AILimiter:   aiLimiter,
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}
	if err := config.CloseMongo(shutdownCtx); err != nil {
		log.WithError(err).Warn("mongo disconnect error")
	}
	if err := config.CloseRedis(); err != nil {
		log.WithError(err).Warn("redis close error")
	}
	if err := config.ClosePostgres(); err != nil {
		log.WithError(err).Warn("postgres close error")
	}
}

type providers struct {
	llm      llm.Provider
	stt      stt.Provider
	tts      tts.Provider
	uploader storage.Uploader
	closers  []func() error
}

// initProviders connects the Google Cloud clients. A provider that is not
// configured stays nil and its features report UNAVAILABLE.
func initProviders(ctx context.Context, cfg *config.App, log *logrus.Logger) *providers {
	p := &providers{}

	if cfg.GCPProject == "" {
		log.Warn("GCP_PROJECT_ID not set; counterpart replies and evaluations are disabled")
	} else if g, err := llm.NewVertexGemini(ctx, cfg.GCPProject, cfg.GCPLocation, cfg.LLMModel); err != nil {
		log.WithError(err).Warn("vertex ai unavailable")
	} else {
		p.llm = g
		p.closers = append(p.closers, g.Close)
	}

	if s, err := stt.NewGoogleSpeech(ctx); err != nil {
		log.WithError(err).Warn("speech-to-text unavailable")
	} else {
		p.stt = s
		p.closers = append(p.closers, s.Close)
	}

	if t, err := tts.NewGoogleTTS(ctx); err != nil {
		log.WithError(err).Warn("text-to-speech unavailable")
	} else {
		p.tts = t
		p.closers = append(p.closers, t.Close)
	}

	if cfg.StorageBucket == "" {
		log.Warn("GCS_BUCKET not set; uploads are disabled")
	} else if u, err := storage.NewGCSUploader(ctx, cfg.StorageBucket, os.Getenv("GCS_PUBLIC") == "true"); err != nil {
		log.WithError(err).Warn("cloud storage unavailable")
	} else {
		p.uploader = u
		p.closers = append(p.closers, u.Close)
	}
	return p
}

func (p *providers) close() {
	for _, c := range p.closers {
		_ = c()
	}
}
