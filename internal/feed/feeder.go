// Package feed implements the driftfeed client: it reads scalar values from
// stdin or a CSV file and ships them to a push stream over the ingest API,
// batched and optionally rate-limited. This is how recorded series are
// replayed through the detector.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const userAgent = "driftwatch-feed/0.1"

// Feeder reads values and posts them to a push stream in batches.
type Feeder struct {
	config  *Config
	logger  *zap.Logger
	client  *http.Client
	limiter *rate.Limiter

	token        string
	refreshToken string

	sent    int
	batches int
	skipped int
}

// NewFeeder creates a feeder instance.
func NewFeeder(config *Config, logger *zap.Logger) *Feeder {
	f := &Feeder{
		config: config,
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	if config.Rate > 0 {
		// Burst must cover a full batch or WaitN can never succeed.
		f.limiter = rate.NewLimiter(rate.Limit(config.Rate), config.BatchSize)
	}
	return f
}

// Run feeds the input to the server and blocks until the input is exhausted
// or the context is cancelled. Cancellation abandons any buffered samples.
func (f *Feeder) Run(ctx context.Context) error {
	if err := f.config.Validate(); err != nil {
		return err
	}

	f.token = f.config.Token
	if f.token == "" {
		if err := f.login(ctx); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	in, err := f.open()
	if err != nil {
		return err
	}
	defer in.Close()

	f.logger.Info("feeding stream",
		zap.String("stream_id", f.config.StreamID),
		zap.String("server", f.config.ServerURL),
		zap.Int("batch_size", f.config.BatchSize),
		zap.Float64("rate", f.config.Rate),
	)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				scanErr <- ctx.Err()
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	ticker := time.NewTicker(f.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]float64, 0, f.config.BatchSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := f.flush(ctx, &batch); err != nil {
				return err
			}

		case line, ok := <-lines:
			if !ok {
				if err := f.flush(ctx, &batch); err != nil {
					return err
				}
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				f.logger.Info("feed complete",
					zap.Int("sent", f.sent),
					zap.Int("batches", f.batches),
					zap.Int("skipped", f.skipped),
				)
				return nil
			}

			v, valid := f.parse(line)
			if !valid {
				f.skipped++
				continue
			}
			batch = append(batch, v)
			if len(batch) >= f.config.BatchSize {
				if err := f.flush(ctx, &batch); err != nil {
					return err
				}
			}
		}
	}
}

func (f *Feeder) open() (io.ReadCloser, error) {
	if f.config.File == "" {
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(f.config.File)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return file, nil
}

// parse extracts the value from one input line. Lines split on commas, so
// plain value-per-line input and CSV both work. Header rows and non-finite
// values are skipped rather than shipped: the server rejects NaN and Inf.
func (f *Feeder) parse(line string) (float64, bool) {
	fields := strings.Split(line, ",")
	if f.config.Column >= len(fields) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[f.config.Column]), 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// flush posts the buffered batch and resets it. Empty batches are a no-op.
func (f *Feeder) flush(ctx context.Context, batch *[]float64) error {
	values := *batch
	if len(values) == 0 {
		return nil
	}

	if f.limiter != nil {
		if err := f.limiter.WaitN(ctx, len(values)); err != nil {
			return err
		}
	}

	if err := f.post(ctx, values); err != nil {
		return err
	}
	f.sent += len(values)
	f.batches++
	*batch = values[:0]
	return nil
}

// post ships one batch, refreshing the access token on 401 and backing off
// on 429 and server errors.
func (f *Feeder) post(ctx context.Context, values []float64) error {
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		status, body, err := f.doPost(ctx, values)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusAccepted:
			return nil

		case status == http.StatusUnauthorized && f.refreshToken != "" && attempt == 0:
			if err := f.refresh(ctx); err != nil {
				return fmt.Errorf("refresh token: %w", err)
			}

		case (status == http.StatusTooManyRequests || status >= 500) && attempt < 3:
			f.logger.Warn("batch not accepted, retrying",
				zap.Int("status", status),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2

		default:
			return fmt.Errorf("server rejected batch: status %d: %s", status, body)
		}
	}
}

func (f *Feeder) doPost(ctx context.Context, values []float64) (int, string, error) {
	payload, err := json.Marshal(map[string][]float64{"values": values})
	if err != nil {
		return 0, "", fmt.Errorf("marshal batch: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/source/streams/%s/samples",
		strings.TrimRight(f.config.ServerURL, "/"), f.config.StreamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, strings.TrimSpace(string(body)), nil
}

// tokenPair mirrors the auth API response.
type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (f *Feeder) login(ctx context.Context) error {
	pair, err := f.postAuth(ctx, "/api/v1/auth/login", map[string]string{
		"username": f.config.Username,
		"password": f.config.Password,
	})
	if err != nil {
		return err
	}
	f.token = pair.AccessToken
	f.refreshToken = pair.RefreshToken
	f.logger.Info("logged in", zap.String("username", f.config.Username))
	return nil
}

// refresh exchanges the refresh token for a new pair. Tokens rotate: the old
// refresh token is dead after this call.
func (f *Feeder) refresh(ctx context.Context) error {
	pair, err := f.postAuth(ctx, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": f.refreshToken,
	})
	if err != nil {
		return err
	}
	f.token = pair.AccessToken
	f.refreshToken = pair.RefreshToken
	f.logger.Debug("access token refreshed")
	return nil
}

func (f *Feeder) postAuth(ctx context.Context, path string, body map[string]string) (*tokenPair, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(f.config.ServerURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, path)
	}

	var pair tokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode token pair: %w", err)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("empty access token from %s", path)
	}
	return &pair, nil
}
