package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Skufu/GoSymptom/internal/api"
	"github.com/Skufu/GoSymptom/internal/diagnosis"
	"github.com/Skufu/GoSymptom/internal/dialogue"
	"github.com/Skufu/GoSymptom/internal/forward"
	"github.com/Skufu/GoSymptom/internal/language"
	"github.com/Skufu/GoSymptom/internal/llm"
	"github.com/Skufu/GoSymptom/internal/logging"
	"github.com/Skufu/GoSymptom/internal/predictor"
	"github.com/Skufu/GoSymptom/internal/store"
	"github.com/Skufu/GoSymptom/internal/symptom"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string

	GeminiAPIKey string
	GenAIBaseURL string
	ChatModel    string
	VisionModel  string
	GenAITimeout time.Duration

	PredictAPIURL     string
	PredictAPITimeout time.Duration

	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration

	DataDir           string
	ModelTestFraction float64
	ModelSeed         int64

	MaxBodyBytes int64

	EnableDB    bool
	DatabaseURL string
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	svc, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer svc.Close()

	svc.cleanup.Start(ctx)
	defer svc.cleanup.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           svc.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout(cfg),
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("server listening", zap.String("addr", server.Addr), zap.Bool("db", cfg.EnableDB))
	waitForShutdown(server, logger)
}

// app holds everything built at startup.
type app struct {
	router  *gin.Engine
	cleanup *dialogue.CleanupService
	db      *store.Postgres
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func newApp(ctx context.Context, cfg *Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	var recorder store.Recorder = store.Nop{}
	var health api.HealthChecker
	if cfg.EnableDB {
		db, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		recorder = db
		health = db
	}

	model, err := predictor.Load(dataFS(cfg.DataDir), predictor.Options{
		TestFraction: cfg.ModelTestFraction,
		Seed:         cfg.ModelSeed,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load model: %w", err)
	}

	gen, err := llm.NewClient(llm.Config{
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GenAIBaseURL,
		ChatModel:   cfg.ChatModel,
		VisionModel: cfg.VisionModel,
		Timeout:     cfg.GenAITimeout,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	lang := language.NewService(gen, logger)
	extractor := symptom.NewExtractor(gen, symptom.Default(), logger)
	sessions := dialogue.NewMemoryStore(cfg.SessionTTL)

	chat, err := dialogue.NewManager(dialogue.Config{
		Language:  lang,
		Extractor: extractor,
		Predictor: model,
		Store:     sessions,
		Recorder:  recorder,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	handler := api.NewHandler(api.Deps{
		Chat:          chat,
		Diagnoser:     diagnosis.NewService(gen, lang, extractor, recorder, logger),
		Predictor:     model,
		Extractor:     extractor,
		Forwarder:     forward.NewClient(cfg.PredictAPIURL, cfg.PredictAPITimeout, logger),
		DB:            health,
		Recorder:      recorder,
		MaxImageBytes: cfg.MaxBodyBytes,
		Logger:        logger,
	})

	a.router = setupRouter(handler, logger, cfg.MaxBodyBytes)
	a.cleanup = dialogue.NewCleanupService(sessions, cfg.SessionCleanupInterval, logger)
	return a, nil
}

func dataFS(dir string) fs.FS {
	if dir == "" {
		return predictor.EmbeddedData()
	}
	return os.DirFS(dir)
}

// writeTimeout leaves room for a chat turn: detection and extraction run
// together, then translation, plus a forwarded prediction.
func writeTimeout(cfg *Config) time.Duration {
	return 2*cfg.GenAITimeout + cfg.PredictAPITimeout + 5*time.Second
}

func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", gin.ReleaseMode),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GenAIBaseURL: getEnv("GENAI_BASE_URL", llm.DefaultBaseURL),
		ChatModel:    getEnv("GENAI_CHAT_MODEL", llm.DefaultChatModel),
		VisionModel:  getEnv("GENAI_VISION_MODEL", llm.DefaultVisionModel),
		GenAITimeout: getEnvDuration("GENAI_TIMEOUT", llm.DefaultTimeout, &errs),

		PredictAPIURL:     os.Getenv("PREDICT_API_URL"),
		PredictAPITimeout: getEnvDuration("PREDICT_API_TIMEOUT", forward.DefaultTimeout, &errs),

		SessionTTL:             getEnvDuration("SESSION_TTL", dialogue.DefaultSessionTTL, &errs),
		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", dialogue.DefaultCleanupInterval, &errs),

		DataDir:           os.Getenv("DATA_DIR"),
		ModelTestFraction: getEnvFloat("MODEL_TEST_FRACTION", 0.3, &errs),
		ModelSeed:         getEnvInt("MODEL_SEED", 42, &errs),

		MaxBodyBytes: getEnvInt("MAX_BODY_BYTES", 10<<20, &errs),

		EnableDB:    strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}

	// Without an explicit prediction API, forward to this process's own /predict.
	if cfg.PredictAPIURL == "" {
		cfg.PredictAPIURL = "http://localhost:" + cfg.Port + "/predict"
	}

	if cfg.GeminiAPIKey == "" {
		errs = append(errs, fmt.Errorf("GEMINI_API_KEY is required"))
	}
	if cfg.EnableDB && cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true"))
	}
	if cfg.ModelTestFraction < 0 || cfg.ModelTestFraction >= 1 {
		errs = append(errs, fmt.Errorf("MODEL_TEST_FRACTION must be in [0, 1)"))
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupRouter(h *api.Handler, logger *zap.Logger, maxBody int64) *gin.Engine {
	router := gin.New()
	router.Use(
		logging.RequestID(),
		logging.Access(logger),
		logging.Recovery(logger),
		limitBodySize(maxBody),
		cors.New(cors.Config{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader},
			ExposeHeaders: []string{logging.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}),
	)

	h.RegisterRoutes(router)
	return router
}

func waitForShutdown(server *http.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, val))
		return fallback
	}
	return d
}

func getEnvInt(key string, fallback int64, errs *[]error) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, val))
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64, errs *[]error) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid number %q", key, val))
		return fallback
	}
	return f
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
