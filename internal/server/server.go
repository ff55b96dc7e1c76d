package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/atom-ai-labs/cataloger/config"
	"github.com/atom-ai-labs/cataloger/internal/catalog"
	"github.com/atom-ai-labs/cataloger/internal/chat/session"
	"github.com/atom-ai-labs/cataloger/internal/chat/session/inmemory"
	redis_session "github.com/atom-ai-labs/cataloger/internal/chat/session/redis"
	"github.com/atom-ai-labs/cataloger/internal/crawler"
	"github.com/atom-ai-labs/cataloger/internal/crawler/local"
	"github.com/atom-ai-labs/cataloger/internal/crawler/tavily"
	"github.com/atom-ai-labs/cataloger/internal/extract"
	"github.com/atom-ai-labs/cataloger/internal/warehouse"
	"github.com/atom-ai-labs/cataloger/provider/openai"
)

// NewEcho builds the echo instance with the shared middleware stack: panic
// recovery, permissive CORS, and a unified JSON error handler.
func NewEcho(logger *log.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/hello_world", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"message": "hello world"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// Run assembles the service from configuration and serves until the listener
// fails.
func Run(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	ctx := context.Background()

	wh, err := warehouse.OpenPostgres(ctx, cfg.Warehouse.Postgres.DSN())
	if err != nil {
		return err
	}
	defer wh.Close()

	var crawl crawler.Provider
	switch cfg.Crawler.Provider {
	case "local":
		crawl = &local.Fetcher{Timeout: cfg.Crawler.Timeout, MaxChars: cfg.Crawler.MaxChars}
	default:
		crawl = tavily.NewClient(cfg.Crawler.APIKey, cfg.Crawler.Timeout)
	}

	oracle := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		cfg.LLM.Temperature, cfg.LLM.MaxTokens, cfg.LLM.Timeout)

	reportPath := ""
	if cfg.Telemetry.Enabled {
		reportPath = cfg.Telemetry.TokenReportPath
	}

	var sessions session.Store
	var rdb *redis.Client
	if cfg.Chat.SessionStore == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Chat.Redis.Addr(),
			Password: cfg.Chat.Redis.Password,
			DB:       cfg.Chat.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Chat.Redis.Addr(), err)
		}
		sessions = redis_session.NewStore(rdb)
	} else {
		sessions = inmemory.NewInMemorySessionStore()
	}

	deps := &Deps{
		Config:    cfg,
		Crawler:   crawl,
		Extractor: extract.New(oracle, reportPath),
		Writer:    warehouse.NewWriter(wh),
		Reader:    warehouse.NewReader(wh),
		Provider:  oracle,
		Sessions:  sessions,
		Autoland:  catalog.NewAutolandClient(cfg.Sync.Autoland.Timeout),
		Logger:    logger,
	}

	e := NewEcho(logger)
	deps.Register(e)

	if cfg.Sync.Autoland.Enabled {
		sched := &Scheduler{
			Autoland: deps.Autoland,
			Writer:   deps.Writer,
			Rdb:      rdb,
			Cron:     cfg.Sync.Autoland.Cron,
			Project:  cfg.Warehouse.Project,
			Dataset:  cfg.Sync.Autoland.Dataset,
			Stop:     make(chan struct{}),
			Logger:   log.New(log.Writer(), "[SYNC] ", log.LstdFlags),
		}
		sched.Start()
		defer close(sched.Stop)
	}

	logger.Printf("listening on %s", cfg.Server.Address)
	return e.Start(cfg.Server.Address)
}
