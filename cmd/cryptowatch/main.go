package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"CryptoWatch/internal/alert"
	"CryptoWatch/internal/collector"
	"CryptoWatch/internal/config"
	"CryptoWatch/internal/feed"
	"CryptoWatch/internal/metrics"
	"CryptoWatch/internal/notifier"
	"CryptoWatch/internal/recorder"
	"CryptoWatch/internal/scheduler"
	"CryptoWatch/internal/server"
	"CryptoWatch/internal/store"
	"CryptoWatch/internal/subscription"
	"CryptoWatch/internal/topic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] CryptoWatch starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	threshold, _ := cfg.Threshold()
	log.Printf("[INFO] watching %v, threshold %s%%, every %s", cfg.Symbols, threshold, cfg.PollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New("cryptowatch", reg)

	// Init store
	if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
		log.Fatalf("[FATAL] create data dir: %v", err)
	}
	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		log.Fatalf("[FATAL] init store: %v", err)
	}
	defer st.Close()

	// Init recorder
	var rec recorder.Recorder
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	if err != nil {
		log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
		rec = recorder.NewNoopRecorder()
	} else {
		rec = sr
		defer sr.Close()
	}

	// Init topic
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[FATAL] connect redis %s: %v", cfg.Redis.Addr, err)
	}
	tp := topic.NewRedisTopic(rdb, cfg.Topic.ID, cfg.Topic.HistoryLen)
	go func() {
		err := tp.Listen(ctx, func(msg topic.Message) {
			log.Printf("[INFO] topic %s delivered message %s: %s", cfg.Topic.ID, msg.ID, msg.Subject)
		})
		if err != nil {
			log.Printf("[WARN] topic listener: %v", err)
		}
	}()

	subs := subscription.NewHandler(tp, m)
	if cfg.NotificationEmail != "" {
		if _, err := subs.Subscribe(ctx, cfg.NotificationEmail); err != nil {
			log.Printf("[WARN] subscribe notification email: %v", err)
		}
	}

	// Init channels
	channels := []notifier.Channel{notifier.NewTopicNotifier(tp)}
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		channels = append(channels, tn)
	} else {
		log.Println("[INFO] telegram channel disabled: bot token or chat id not set")
	}
	if cfg.WebhookEnabled() {
		channels = append(channels, notifier.NewWebhookNotifier(cfg.Webhook.URL, cfg.Proxy))
	} else {
		log.Println("[INFO] webhook channel disabled: url not set")
	}
	dispatcher := notifier.NewDispatcher(m, cfg.Notify.Retries, channels...)

	// Change detector, fed from the store's change log
	proc := alert.NewProcessor(threshold, dispatcher, rec, m)
	fd := feed.New("detector", st, proc.HandleBatch, rec, m)
	fd.BatchSize = cfg.Feed.BatchSize
	fd.Interval = cfg.Feed.Interval
	fd.MaxAttempts = cfg.Feed.MaxAttempts
	go fd.Run(ctx)

	// Init ingestor and scheduler
	fetcher := collector.NewCoinGeckoFetcher(cfg.CoinGecko.BaseURL, cfg.CoinGecko.APIKey, cfg.CoinGecko.Precision, cfg.Proxy)
	log.Printf("[INFO] data source: %s", fetcher.Name())
	ing := collector.NewIngestor(fetcher, st, cfg.Symbols, m)

	sched := scheduler.NewScheduler(ctx, ing, rec, st, m, cfg.DeadLetter.Retention)
	if err := sched.RegisterAll(cfg.PollInterval, cfg.DeadLetter.PurgeCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil && cfg.Telegram.Commands {
		go tn.StartPolling(ctx, notifier.PriceCommands(st))
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing ingest now")
		go sched.RunIngestNow()
	}

	srv := server.New(cfg.HTTP.Addr, subs, proc, tp, rec, m)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("[ERROR] http server: %v", err)
			cancel()
		}
	}()

	log.Println("[INFO] CryptoWatch is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] http shutdown: %v", err)
	}
	cancel()
	log.Println("[INFO] CryptoWatch stopped")
}
