package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dingocoin/dingocoin-nodes-map/internal/chainconfig"
	"github.com/dingocoin/dingocoin-nodes-map/internal/dialer"
	"github.com/dingocoin/dingocoin-nodes-map/internal/discovery"
)

func testCfgs() (*chainconfig.ChainConfig, *chainconfig.CrawlerConfig) {
	chain := &chainconfig.ChainConfig{
		ProtocolVersion:  70016,
		FallbackVersions: []int32{70015},
	}
	crawler := &chainconfig.CrawlerConfig{
		MaxRetries:             3,
		ConnectionTimeout:      time.Millisecond,
		ExtendedTimeout:        time.Millisecond,
		InitialRetryDelay:      time.Millisecond,
		RetryBackoffMultiplier: 2.0,
	}
	return chain, crawler
}

// TestDialWithRetryScenarioS3ProtocolFallback matches spec.md §8 S3: the
// target only answers version at protocol_version=70015 (the fallback), so
// the first inner iteration (70016) should come back Reachable and the
// second (70015) should come back Up, with Up returned on the first attempt.
func TestDialWithRetryScenarioS3ProtocolFallback(t *testing.T) {
	chain, crawler := testCfgs()
	var calls []int32

	fake := func(ctx context.Context, cfg *chainconfig.ChainConfig, ip string, port uint16, pver int32, timeout time.Duration, startHeight int32, getaddrDelayMs int) dialer.DialResult {
		calls = append(calls, pver)
		if pver == 70015 {
			return dialer.DialResult{Status: discovery.StatusUp}
		}
		return dialer.DialResult{Status: discovery.StatusReachable}
	}

	res := dialWithRetry(context.Background(), chain, crawler, "203.0.113.1", 8333, 0, fake)

	require.Equal(t, discovery.StatusUp, res.Status)
	require.Equal(t, []int32{70016, 70015}, calls, "expected exactly one attempt, trying both versions in order")
}

// TestDialWithRetryUnreachableAbandonsAttempt matches spec.md §4.3's
// Unreachable rule: when the first protocol version in an
// attempt is Unreachable, the inner loop must not try the rest — TCP itself
// failed, so further versions can't help.
func TestDialWithRetryUnreachableAbandonsAttempt(t *testing.T) {
	chain, crawler := testCfgs()
	crawler.MaxRetries = 0
	var calls []int32

	fake := func(ctx context.Context, cfg *chainconfig.ChainConfig, ip string, port uint16, pver int32, timeout time.Duration, startHeight int32, getaddrDelayMs int) dialer.DialResult {
		calls = append(calls, pver)
		return dialer.DialResult{Status: discovery.StatusUnreachable}
	}

	res := dialWithRetry(context.Background(), chain, crawler, "198.51.100.99", 1, 0, fake)

	require.Equal(t, discovery.StatusUnreachable, res.Status)
	require.Equal(t, []int32{70016}, calls, "fallback version must not be tried after Unreachable")
}

// TestDialWithRetryPromotesBestAcrossAttempts: attempt 1 is Reachable on
// every version, attempt 2 reaches Up — the overall result must be the best
// classification observed across the whole schedule, not just the last one.
func TestDialWithRetryPromotesBestAcrossAttempts(t *testing.T) {
	chain, crawler := testCfgs()
	crawler.MaxRetries = 1
	attempt := 0

	fake := func(ctx context.Context, cfg *chainconfig.ChainConfig, ip string, port uint16, pver int32, timeout time.Duration, startHeight int32, getaddrDelayMs int) dialer.DialResult {
		if pver == chain.ProtocolVersion {
			attempt++
		}
		if attempt == 2 {
			return dialer.DialResult{Status: discovery.StatusUp}
		}
		return dialer.DialResult{Status: discovery.StatusReachable}
	}

	res := dialWithRetry(context.Background(), chain, crawler, "203.0.113.2", 8333, 0, fake)

	require.Equal(t, discovery.StatusUp, res.Status)
}

func TestBackoffDelayExponential(t *testing.T) {
	initial := 100 * time.Millisecond
	require.Equal(t, 100*time.Millisecond, backoffDelay(initial, 2.0, 1))
	require.Equal(t, 200*time.Millisecond, backoffDelay(initial, 2.0, 2))
	require.Equal(t, 400*time.Millisecond, backoffDelay(initial, 2.0, 3))
}

func TestBackoffDelayScenarioS4TotalObservableDelay(t *testing.T) {
	// spec.md §8 S4: with max_retries=3, b=multiplier, observable delay
	// across attempts 2..4 is >= initial * (1 + b + b^2).
	initial := 50 * time.Millisecond
	b := 2.0
	total := backoffDelay(initial, b, 1) + backoffDelay(initial, b, 2) + backoffDelay(initial, b, 3)
	want := time.Duration(float64(initial) * (1 + b + b*b))
	require.Equal(t, want, total)
}
