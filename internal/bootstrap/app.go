package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "github.com/hasanmk52/terra-voyage-sub003/internal/handler/http"
	wsHandler "github.com/hasanmk52/terra-voyage-sub003/internal/handler/websocket"
	"github.com/hasanmk52/terra-voyage-sub003/internal/hub"
	gormpersistence "github.com/hasanmk52/terra-voyage-sub003/internal/infra/persistence/gorm"
	"github.com/hasanmk52/terra-voyage-sub003/internal/infra/setup"
	redisstate "github.com/hasanmk52/terra-voyage-sub003/internal/infra/state/redis"
	"github.com/hasanmk52/terra-voyage-sub003/internal/middleware"
	"github.com/hasanmk52/terra-voyage-sub003/internal/service"
	"github.com/hasanmk52/terra-voyage-sub003/internal/tasks"
	"github.com/hasanmk52/terra-voyage-sub003/internal/worker"
)

// 审计记录清理任务的调度周期
const purgeSchedule = "@every 24h"

// App 结构体包含应用的所有组件和配置
type App struct {
	Config         *Config
	Log            *logrus.Logger
	DB             *gorm.DB
	RedisClient    *redis.Client
	AsynqClient    *asynq.Client
	AsynqServer    *worker.WorkerServer
	Scheduler      *asynq.Scheduler
	Hub            *hub.Hub
	HttpServer     *http.Server
	redisClientOpt asynq.RedisClientOpt
}

// NewLogger 按运行环境配置 logrus
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)

	// 各组件通过 logrus 包级函数记录日志，保持同样的格式
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Format: %T)", log.GetLevel().String(), log.Formatter)
	log.WithField("instance_id", cfg.InstanceID).Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.Info("Database initialized")

	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	// 4. 初始化 Repositories
	log.Info("Initializing repositories...")
	tripRepo := gormpersistence.NewGormTripRepository(db)
	conflictLogRepo := gormpersistence.NewGormConflictLogRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. 初始化 Services
	log.Info("Initializing services...")
	accessService := service.NewTripAccessService(tripRepo)
	collabOpts := []service.CollaborationOption{service.WithConflictWindow(cfg.ConflictWindow)}
	if cfg.InstanceID != "" {
		collabOpts = append(collabOpts, service.WithInstanceID(cfg.InstanceID))
	}
	collabService := service.NewCollaborationService(stateRepo, conflictLogRepo, asynqClient, collabOpts...)
	log.Info("Services initialized")

	// 6. 初始化 Hub
	hubInstance := hub.NewHub(collabService, stateRepo, hub.DefaultHeartbeatInterval)
	log.Info("Hub initialized")

	// 7. 初始化 Handlers
	tripHandler := httpHandler.NewTripHandler(accessService, collabService, hubInstance)
	wsConnHandler := wsHandler.NewWebSocketHandler(hubInstance, accessService, cfg.CORSAllowedOrigin)
	log.Info("Handlers initialized")

	// 8. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, conflictLogRepo, cfg.WorkerConcurrency, log)
	log.Info("Worker server initialized")

	// 9. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := NewRouter(RouterDeps{
		Log:         log,
		TripHandler: tripHandler,
		WSHandler:   wsConnHandler,
		Auth:        middleware.Auth(cfg.JWTSecret),
		RateLimit:   middleware.RateLimit(stateRepo, cfg.RateLimitMax, cfg.RateLimitWindow),
		CORSOrigin:  cfg.CORSAllowedOrigin,
	})
	log.Info("Router setup complete")

	// 10. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

func (a *App) registerPeriodicTasks() {
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{Location: time.UTC})

	taskPayload, err := tasks.NewConflictLogPurgeTask(a.Config.ConflictLogRetention)
	if err != nil {
		a.Log.Errorf("Failed to create conflict log purge task payload: %v", err)
		return
	}
	task := asynq.NewTask(tasks.TypeConflictLogPurge, taskPayload)

	entryID, err := scheduler.Register(purgeSchedule, task, asynq.Queue("low"))
	if err != nil {
		a.Log.Errorf("Could not register conflict log purge task: %v", err)
		return
	}
	a.Log.Infof("Conflict log purge task registered with schedule '%s' (EntryID: %s)", purgeSchedule, entryID)

	// Start 是非阻塞的，Shutdown 时停止
	if err := scheduler.Start(); err != nil {
		a.Log.Errorf("Asynq scheduler failed to start: %v", err)
		return
	}
	a.Scheduler = scheduler
	a.Log.Info("Asynq scheduler started")
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止 Hub 的订阅
	if a.Hub != nil {
		a.Hub.StopAllSubscriptions()
	}

	// 2. 停止调度器和 Worker Server
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
		a.Log.Info("Asynq scheduler stopped.")
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 3. 优雅关闭 HTTP 服务器
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 4. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		} else {
			a.Log.Info("Asynq client closed.")
		}
	}

	// 5. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	// 6. 关闭数据库连接池
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			} else {
				a.Log.Info("Database connection closed.")
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}
