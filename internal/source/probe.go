package source

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// ErrProbeFailed is returned when a probe target sends no reply within the
// timeout.
var ErrProbeFailed = errors.New("probe received no reply")

// Prober measures round-trip time to a host using ICMP echo.
type Prober struct {
	timeout time.Duration
	count   int
	logger  *zap.Logger
}

// NewProber creates a prober with the given per-probe timeout and packet
// count.
func NewProber(timeout time.Duration, count int, logger *zap.Logger) *Prober {
	return &Prober{timeout: timeout, count: count, logger: logger}
}

// Measure pings the target and returns the average round-trip time in
// milliseconds.
func (p *Prober) Measure(ctx context.Context, target string) (float64, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return 0, fmt.Errorf("pinger for %s: %w", target, err)
	}

	pinger.Count = p.count
	pinger.Timeout = p.timeout
	// Windows has no unprivileged ICMP sockets.
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := pinger.Run(); runErr != nil {
			p.logger.Debug("ping failed", zap.String("target", target), zap.Error(runErr))
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		return 0, ctx.Err()
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, ErrProbeFailed
	}
	return float64(stats.AvgRtt) / float64(time.Millisecond), nil
}
