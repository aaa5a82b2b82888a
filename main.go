package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"hubhook/internal"
	"hubhook/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := internal.LoadEnvFiles(*envPath); err != nil {
		logger.Fatalf("load env: %v", err)
	}
	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	dispatcher, closeDispatcher, err := webhook.NewDispatcherFromConfig(config, logger)
	if err != nil {
		logger.Fatalf("dispatcher: %v", err)
	}
	defer closeDispatcher()

	ghHandler, err := webhook.NewGitHubHandler(dispatcher, logger, config.Server.MaxBodyBytes)
	if err != nil {
		logger.Fatalf("github handler: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle(config.GitHub.Path, ghHandler)
	mux.Handle("/healthz", webhook.HealthHandler())
	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, internal.MetricsHandler())
	}
	logger.Printf("github webhook enabled on %s (secrets=%s rules=%d)", config.GitHub.Path, config.Secrets.Driver, len(config.Rules))

	handler := internal.NewRateLimitHandler(mux, config.Server.RateLimitRPS, config.Server.RateLimitBurst, 0)

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
