package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftwatch/driftwatch/internal/feed"
	"go.uber.org/zap"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "driftwatch server base URL")
	streamID := flag.String("stream", "", "push stream ID to feed")
	username := flag.String("username", "", "username for API login")
	password := flag.String("password", "", "password for API login (or set DRIFTWATCH_PASSWORD)")
	token := flag.String("token", "", "pre-issued access token (skips login)")
	file := flag.String("file", "", "CSV input path (default: read stdin)")
	column := flag.Int("column", 0, "zero-based CSV column holding the value")
	batch := flag.Int("batch", 100, "samples per request")
	flushEvery := flag.Duration("flush-interval", time.Second, "flush partial batches this often")
	rateLimit := flag.Float64("rate", 0, "max samples per second (0 = unlimited)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	pw := *password
	if pw == "" {
		pw = os.Getenv("DRIFTWATCH_PASSWORD")
	}

	config := &feed.Config{
		ServerURL:     *serverURL,
		StreamID:      *streamID,
		Username:      *username,
		Password:      pw,
		Token:         *token,
		File:          *file,
		Column:        *column,
		BatchSize:     *batch,
		FlushInterval: *flushEvery,
		Rate:          *rateLimit,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feeder := feed.NewFeeder(config, logger)
	if err := feeder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("feed error", zap.Error(err))
	}
}
