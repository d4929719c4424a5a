// Package retry implements the Retry/Fallback Strategy (spec.md §4.3):
// exponential backoff across attempts, an inner protocol-version fallback
// loop per attempt, and best-classification promotion across the whole
// schedule.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/dingocoin/dingocoin-nodes-map/internal/chainconfig"
	"github.com/dingocoin/dingocoin-nodes-map/internal/dialer"
	"github.com/dingocoin/dingocoin-nodes-map/internal/discovery"
)

// dialFunc matches dialer.TryDial's signature; DialWithRetry takes it as a
// parameter in dialWithRetry below so tests can substitute a fake dialer to
// exercise the promotion/protocol-fallback state machine without real
// sockets.
type dialFunc func(ctx context.Context, cfg *chainconfig.ChainConfig, ip string, port uint16, protocolVersion int32, timeout time.Duration, startHeight int32, getaddrDelayMs int) dialer.DialResult

// DialWithRetry drives the Dialer across max_retries+1 attempts, trying
// every configured protocol version in order within each attempt, and
// returns the best classification observed overall (spec.md §4.3, §9).
func DialWithRetry(ctx context.Context, cfg *chainconfig.ChainConfig, crawlerCfg *chainconfig.CrawlerConfig, ip string, port uint16, startHeight int32) dialer.DialResult {
	return dialWithRetry(ctx, cfg, crawlerCfg, ip, port, startHeight, dialer.TryDial)
}

func dialWithRetry(ctx context.Context, cfg *chainconfig.ChainConfig, crawlerCfg *chainconfig.CrawlerConfig, ip string, port uint16, startHeight int32, dial dialFunc) dialer.DialResult {
	versions := append([]int32{cfg.ProtocolVersion}, cfg.FallbackVersions...)
	attempts := crawlerCfg.MaxRetries + 1

	var best dialer.DialResult
	wasReachable := false

	for k := 0; k < attempts; k++ {
		if k > 0 {
			delay := backoffDelay(crawlerCfg.InitialRetryDelay, crawlerCfg.RetryBackoffMultiplier, k)
			select {
			case <-ctx.Done():
				return best
			case <-time.After(delay):
			}
		}

		timeout := crawlerCfg.ConnectionTimeout
		if wasReachable {
			timeout = crawlerCfg.ExtendedTimeout
		}

		attemptWasReachable := false
		for _, v := range versions {
			res := dial(ctx, cfg, ip, port, v, timeout, startHeight, crawlerCfg.GetAddrDelayMs)

			switch res.Status {
			case discovery.StatusUp:
				return res
			case discovery.StatusReachable:
				if res.Status > best.Status {
					best = res
				}
				attemptWasReachable = true
				// The TCP layer is fine; try the next protocol version within
				// this same attempt before giving up on it.
				continue
			case discovery.StatusUnreachable:
				// No point trying other protocol versions when TCP itself
				// failed; abandon the rest of this attempt.
				if res.Status > best.Status {
					best = res
				}
			}
			break
		}
		wasReachable = attemptWasReachable
	}

	return best
}

func backoffDelay(initial time.Duration, multiplier float64, attempt int) time.Duration {
	factor := math.Pow(multiplier, float64(attempt-1))
	return time.Duration(float64(initial) * factor)
}
