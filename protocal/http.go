package protocal

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wps-bot-bridge/configs"
	httpAdapter "wps-bot-bridge/internal/adapters/input/http"
	"wps-bot-bridge/internal/adapters/output/llm"
	"wps-bot-bridge/internal/adapters/output/memory"
	"wps-bot-bridge/internal/adapters/output/postgres"
	redisAdapter "wps-bot-bridge/internal/adapters/output/redis"
	"wps-bot-bridge/internal/adapters/output/wps"
	"wps-bot-bridge/internal/application"
	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/internal/ports/input"
	"wps-bot-bridge/internal/ports/output"
	"wps-bot-bridge/pkg/clock"
	"wps-bot-bridge/pkg/database_driver/gorm"
	redisDriver "wps-bot-bridge/pkg/database_driver/redis"
	"wps-bot-bridge/pkg/signature"

	swagger "github.com/arsmn/fiber-swagger/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"
)

// Version is reported by the index route
var Version = "1.0.0"

const (
	defaultShutdownTimeout = 10 * time.Second
	// budget for reply delivery on top of the LLM timeout
	dispatchBudget = time.Minute
)

// ServeOptions selects where configuration is read from
type ServeOptions struct {
	Env        string
	ConfigPath string
}

// Server holds the wired application and what must be released on shutdown
type Server struct {
	App    *fiber.App
	Events *httpAdapter.EventHandler

	stopSweeper context.CancelFunc
	sweeperDone <-chan struct{}
	closers     []func()
}

// SetupLogger configures the package-level logrus logger
func SetupLogger(app configs.App) {
	if app.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	if app.Env == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// NewServer wires every adapter for cfg and registers the routes
func NewServer(cfg *configs.Config) (*Server, error) {
	s := &Server{stopSweeper: func() {}}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	checks := map[string]httpAdapter.HealthCheckFunc{}
	realClock := clock.Real()

	// Output adapter (session store)
	policy := domain.SessionPolicy{
		MaxTurns: cfg.Session.MaxTurns,
		MaxBytes: cfg.Session.MaxBytes,
		IdleTTL:  cfg.Session.IdleTTLDuration(),
	}
	var sessions output.SessionStore
	switch cfg.Session.Backend {
	case "redis":
		client, err := redisDriver.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { redisDriver.Disconnect(client) })
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		sessions = redisAdapter.NewRedisSessionStore(client, policy, realClock)
	default:
		store := memory.NewMemorySessionStore(policy, realClock)
		sweepCtx, cancel := context.WithCancel(context.Background())
		s.stopSweeper = cancel
		s.sweeperDone = store.StartSweeper(sweepCtx, cfg.Session.SweepIntervalDuration())
		sessions = store
	}
	logrus.Infof("Session store: %s, max turns %d, idle ttl %v", cfg.Session.Backend, policy.MaxTurns, policy.IdleTTL)

	// Output adapter (message log repository)
	var messageLog output.MessageLogRepository
	var messageLogs input.MessageLogService
	if cfg.Postgres.Enabled {
		db, err := gorm.ConnectToPostgreSQL(gorm.Options{
			Host:         cfg.Postgres.Host,
			Port:         cfg.Postgres.Port,
			Username:     cfg.Postgres.Username,
			Password:     cfg.Postgres.Password,
			DbName:       cfg.Postgres.DbName,
			SSLMode:      cfg.Postgres.SSLMode,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { gorm.DisconnectPostgres(db) })
		if err := domain.MigrateDatabase(db); err != nil {
			return nil, err
		}
		checks["postgres"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
		repo := postgres.NewMessageLogRepository(db)
		messageLog = repo
		messageLogs = application.NewMessageLogService(repo)
	}

	var dedupe output.MessageDeduplicator
	if cfg.Dedupe.Enabled {
		dedupe = memory.NewMessageDeduplicator(cfg.Dedupe.WindowDuration())
	}

	// Output adapters (LLM gateway, platform)
	llmClient, err := llm.NewOpenAIClientAdapter(cfg.LLM)
	if err != nil {
		return nil, err
	}
	dispatcher := wps.NewDispatcher(cfg.WPS, cfg.Dispatch)

	// Application service (use case)
	orchestrator := application.NewOrchestrator(application.OrchestratorDeps{
		Verifier:     signature.NewVerifier(cfg.WPS.AppID, cfg.WPS.AppSecret, signature.WithWindow(cfg.WPS.SignatureWindowDuration())),
		Normalizer:   application.NewEventNormalizer(nil),
		Commands:     application.NewCommandClassifier(cfg.Bot.HelpCommands, cfg.Bot.ResetCommands),
		Sessions:     sessions,
		LLM:          llmClient,
		Platform:     dispatcher,
		Deduplicator: dedupe,
		MessageLog:   messageLog,
		Clock:        realClock,
	}, orchestratorConfig(cfg))

	// Input adapters (HTTP handlers)
	s.Events = httpAdapter.NewEventHandler(orchestrator, cfg.App.AsyncProcessing, cfg.LLM.RequestTimeoutDuration()+dispatchBudget)
	hdl := httpAdapter.New(messageLogs, Version, checks)

	fiberCfg := fiber.Config{
		AppName:               httpAdapter.ServiceName,
		DisableStartupMessage: !cfg.App.Debug,
	}
	if cfg.App.BodyLimit > 0 {
		fiberCfg.BodyLimit = cfg.App.BodyLimit
	}
	app := fiber.New(fiberCfg)
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/", hdl.Index)
	app.Get("/health", hdl.HealthCheck)
	app.Get("/swagger/*", swagger.HandlerDefault) // default

	app.Post("/event/callback", s.Events.HandleEvent)
	app.Post("/webhook", s.Events.HandleEvent)

	v1 := app.Group("/v1/api")
	{
		v1.Get("/conversations/:id/messages", hdl.GetConversationMessages)
	}

	s.App = app
	ok = true
	return s, nil
}

func orchestratorConfig(cfg *configs.Config) application.OrchestratorConfig {
	temperature := cfg.LLM.Temperature
	topP := cfg.LLM.TopP
	maxTokens := cfg.LLM.MaxTokens
	presence := cfg.LLM.PresencePenalty
	frequency := cfg.LLM.FrequencyPenalty

	return application.OrchestratorConfig{
		AllowUnsignedHandshake: cfg.WPS.AllowUnsignedHandshake,
		SystemPrompt:           cfg.Bot.CharacterDesc,

		LLMTimeout:       cfg.LLM.RequestTimeoutDuration(),
		Model:            cfg.LLM.Model,
		Temperature:      &temperature,
		TopP:             &topP,
		MaxTokens:        &maxTokens,
		PresencePenalty:  &presence,
		FrequencyPenalty: &frequency,

		Triggers: application.TriggerRules{
			GroupWhitelist:     cfg.Bot.GroupWhitelist,
			GroupAtOff:         cfg.Bot.GroupAtOff,
			SingleChatPrefixes: cfg.Bot.SingleChatPrefix,
		},
		SingleChatReplyPrefix: cfg.Bot.SingleChatReplyPrefix,
		ReplyKind:             domain.ReplyKind(cfg.Bot.ReplyKind),

		MaxInputChars:    cfg.Bot.MaxInputChars,
		MaxReplyChars:    cfg.Bot.MaxReplyChars,
		MaxReplyMessages: cfg.Bot.MaxReplyMessages,

		FallbackReply:    cfg.Bot.FallbackReply,
		RateLimitedReply: cfg.Bot.RateLimitedReply,
		UnsupportedReply: cfg.Bot.UnsupportedReply,
		HelpReply:        cfg.Bot.HelpReply,
		ResetReply:       cfg.Bot.ResetReply,
	}
}

// Close stops the sweeper and releases database connections
func (s *Server) Close() {
	s.stopSweeper()
	if s.sweeperDone != nil {
		<-s.sweeperDone
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Shutdown stops accepting requests, drains in-flight messages and closes resources
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.App.ShutdownWithContext(ctx)
	if err != nil {
		logrus.Errorf("Error when shutdown server: %v", err)
	}
	if werr := s.Events.Wait(ctx); werr != nil {
		logrus.Warnf("Stopped before every in-flight message finished: %v", werr)
		err = errors.Join(err, werr)
	}
	s.Close()
	return err
}

// ServeHTTP func
func ServeHTTP(opts ServeOptions) error {
	if opts.ConfigPath == "" {
		opts.ConfigPath = "./configs"
	}
	configs.InitViper(opts.ConfigPath, opts.Env)
	cfg := configs.GetViper()
	SetupLogger(cfg.App)
	logrus.Infof("Starting %s %s in %s mode", httpAdapter.ServiceName, Version, cfg.App.Env)

	server, err := NewServer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Listening on port: %s", cfg.App.Port)
		errCh <- server.App.Listen(":" + cfg.App.Port)
	}()

	select {
	case err := <-errCh:
		server.Close()
		return err
	case <-ctx.Done():
	}

	logrus.Info("Graceful shut down ...")
	timeout := cfg.App.ShutdownTimeoutDuration()
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
