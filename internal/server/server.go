package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/jihoon-dev/portfolio-chat/config"
	"github.com/jihoon-dev/portfolio-chat/internal/index"
	"github.com/jihoon-dev/portfolio-chat/internal/policy"
	openai_provider "github.com/jihoon-dev/portfolio-chat/provider/openai"
)

// Run wires the service together and serves HTTP until the listener stops.
func Run(cfg *appconfig.Config) error {
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
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	loader := index.NewLoader(cfg.Index.Path, log.New(log.Writer(), "[INDEX] ", log.LstdFlags))
	llm := openai_provider.New(
		cfg.Provider.APIKey,
		cfg.Provider.BaseURL,
		cfg.Provider.CompletionModel,
		cfg.Provider.EmbeddingModel,
		cfg.Provider.Temperature,
		cfg.Provider.MaxTokens,
		cfg.Provider.Timeout,
	)

	ch := &ChatHandler{
		Policy:    pol,
		Loader:    loader,
		LLM:       llm,
		WordDelay: cfg.Stream.WordDelay,
		Timeout:   cfg.Provider.Timeout,
		Logger:    log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	ch.Register(e.Group("/api"))

	addr := cfg.General.Listen
	if addr == "" {
		addr = ":8787"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
