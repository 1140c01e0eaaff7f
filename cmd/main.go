package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"rssreader/internal/config"
	"rssreader/internal/feed"
	"rssreader/internal/i18n"
	"rssreader/internal/proxy"
	"rssreader/internal/render"
	"rssreader/internal/scheduler"
	"rssreader/internal/state"
	"rssreader/internal/summarizer"
	"rssreader/internal/web"
	"syscall"
	"time"
)

const (
	pollRetries     = 2
	shutdownTimeout = 10 * time.Second
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	catalog, err := i18n.Load(cfg.Locale)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load catalog",
			"error", err,
			"locale", cfg.Locale)

		return
	}

	proxyClient, err := proxy.New(cfg.ProxyURL, log,
		proxy.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
		proxy.WithRateLimit(cfg.ProxyRateLimit),
		proxy.WithRetries(0))
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize proxy client",
			"error", err,
			"proxyURL", cfg.ProxyURL)

		return
	}
	log.InfoContext(ctx, "Proxy client is initialized",
		"proxyURL", cfg.ProxyURL,
		"fetchTimeout", cfg.FetchTimeout.String(),
		"rateLimit", cfg.ProxyRateLimit)

	store := state.New(log)

	renderer, err := render.New(catalog, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize renderer",
			"error", err)

		return
	}

	hub := web.NewHub(log)
	renderer.SetPublisher(hub)
	renderer.Bind(store)

	parser := feed.NewParser()
	summaries := feed.NewSummaries(initOpenAISummarizer(ctx, cfg.OpenAIAPIKey, log), log)

	ingester := feed.NewIngester(store, proxyClient, parser, summaries, log)
	refresher := feed.NewRefresher(store, proxyClient.With(proxy.WithRetries(pollRetries)), parser, summaries, log)

	poller := scheduler.New(ctx, refresher, log)
	poller.Start()
	defer poller.Stop()
	log.InfoContext(ctx, "Poller is started",
		"delay", scheduler.PollDelay.String())

	server := web.New(ctx, store, renderer, ingester, hub, log)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Failed to serve HTTP",
				"error", err,
				"listenAddr", cfg.ListenAddr)
			cancel()
		}
	}()
	log.InfoContext(ctx, "HTTP server is started",
		"listenAddr", cfg.ListenAddr,
		"locale", catalog.Locale())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-c:
		log.InfoContext(ctx, "Shutdown signal is received",
			"signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	hub.Close()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "Failed to shut down HTTP server",
			"error", err)
	}

	cancel()
	server.Wait()

	log.InfoContext(shutdownCtx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())
}

func initOpenAISummarizer(ctx context.Context, apiKey string, log *slog.Logger) summarizer.Summarizer {
	if apiKey == "" {
		log.WarnContext(ctx, "OPENAI_API_KEY is missing so summaries are disabled",
			"envVar", "OPENAI_API_KEY")

		return nil
	}

	s, err := summarizer.NewOpenAISummarizer(apiKey)
	if err != nil {
		log.WarnContext(ctx, "Failed to initialize OpenAI summarizer so summaries are disabled",
			"error", err)

		return nil
	}

	return s
}
