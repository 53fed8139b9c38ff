package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/docpilot/docpilot/config"
	"github.com/docpilot/docpilot/internal/dify"
	"github.com/docpilot/docpilot/internal/search"
	"github.com/docpilot/docpilot/internal/session"
	"github.com/docpilot/docpilot/internal/storage"
	"github.com/docpilot/docpilot/internal/store"
)

// Run wires the whole service: stores, upstream client, session manager,
// HTTP handlers and the background scheduler. It blocks serving HTTP.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
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
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		log.Printf("[MIGRATE] %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	files, err := storage.New(cfg.Storage.UploadDir)
	if err != nil {
		return err
	}

	if err := cfg.Dify.Validate(); err != nil {
		return err
	}
	difyClient := dify.NewClient(cfg.Dify)

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	if cfg.Databases.Redis.Host == "" || cfg.Databases.Redis.Port == "" {
		return fmt.Errorf("redis not configured (databases.redis.host/port)")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Databases.Redis.Addr(), Password: cfg.Databases.Redis.Pass, DB: cfg.Databases.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
	}

	profile := session.ProfileFor(cfg.Server.Env).
		Override(cfg.Session.Timeout, cfg.Session.WarningWindow, cfg.Session.CheckInterval)
	sessLogger := log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	sessions := session.NewManager(profile, session.NewRedisActivityStore(rdb),
		func(key string, remaining time.Duration) {
			sessLogger.Printf("session %s idle, expires in %s", key, remaining.Round(time.Second))
		},
		func(key string) {
			sessLogger.Printf("session %s expired after %s idle", key, profile.Timeout)
		})
	defer sessions.StopAll()

	faqIndex, err := search.NewFAQIndex()
	if err != nil {
		return err
	}
	if faqs, err := st.ListFAQs(ctx); err == nil {
		if err := faqIndex.Rebuild(faqs); err != nil {
			log.Printf("[SEARCH] rebuild faq index: %v", err)
		}
	}

	api := e.Group("/api")

	auth := &AuthHandler{Store: st, Secret: []byte(secret), SessionTTL: cfg.Server.SessionTTL, Sessions: sessions}
	auth.Register(api.Group("/auth"))

	dh := &DocumentsHandler{
		Store:           st,
		Files:           files,
		Dify:            difyClient,
		Secret:          []byte(secret),
		TokenTTL:        cfg.OCR.TokenTTL,
		CallbackBaseURL: cfg.OCR.CallbackBaseURL,
		MaxUploadBytes:  cfg.Storage.MaxUploadBytes,
		Sessions:        sessions,
		Logger:          log.New(log.Writer(), "[OCR] ", log.LstdFlags),
	}
	dh.Register(api.Group("/documents"))

	ch := &ChatHandler{Dify: difyClient, Secret: []byte(secret), Sessions: sessions}
	ch.Register(api.Group("/chat"))

	nh := &NotificationsHandler{Store: st, Secret: []byte(secret), Sessions: sessions}
	nh.Register(api.Group("/notifications"))

	fh := &FAQHandler{Store: st, Index: faqIndex}
	fh.Register(api.Group("/faqs"))

	sh := &SupportHandler{Store: st, Secret: []byte(secret), Sessions: sessions}
	sh.Register(api.Group("/support"))

	ah := &AdminHandler{Store: st, Index: faqIndex, Secret: []byte(secret)}
	ah.Register(api.Group("/admin"))

	sched := &Scheduler{
		Store:       st,
		Files:       files,
		Rdb:         rdb,
		StuckAfter:  cfg.OCR.StuckAfter,
		CleanupCron: cfg.Storage.CleanupCron,
		Stop:        make(chan struct{}),
	}
	sched.Start()
	defer close(sched.Stop)

	addr := cfg.Server.Listen
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// sessionActivity records a request against the caller's idle-session
// tracker and rejects requests on sessions that have already idled out.
// It must run after the auth middleware that sets user_id.
func sessionActivity(mgr *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if mgr != nil {
				if uid, ok := c.Get("user_id").(string); ok && uid != "" {
					if !mgr.Touch(c.Request().Context(), uid) {
						return echo.NewHTTPError(http.StatusUnauthorized, "session expired")
					}
				}
			}
			return next(c)
		}
	}
}
