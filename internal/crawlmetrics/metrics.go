// Package crawlmetrics instruments one pass with rcrowley/go-metrics
// counters and timers, repurposing the teacher's ethdb database-I/O metrics
// pattern for crawl-pass bookkeeping instead.
package crawlmetrics

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// PassMetrics holds the counters and timers for a single pass.
type PassMetrics struct {
	ConnectionsAttempted gometrics.Counter
	ConnectionsUp        gometrics.Counter
	ConnectionsReachable  gometrics.Counter
	ConnectionsUnreachable gometrics.Counter

	SeedsFromStore  gometrics.Counter
	SeedsFromRPC    gometrics.Counter
	SeedsFromDNS    gometrics.Counter
	SeedsFromConfig gometrics.Counter

	PassDuration gometrics.Timer
}

// NewPassMetrics registers a fresh set of metrics under the "crawl/" prefix.
// Registration uses a private registry per pass so repeated passes do not
// collide on metric names.
func NewPassMetrics() *PassMetrics {
	r := gometrics.NewRegistry()
	return &PassMetrics{
		ConnectionsAttempted:   gometrics.NewRegisteredCounter("crawl/connections/attempted", r),
		ConnectionsUp:          gometrics.NewRegisteredCounter("crawl/connections/up", r),
		ConnectionsReachable:   gometrics.NewRegisteredCounter("crawl/connections/reachable", r),
		ConnectionsUnreachable: gometrics.NewRegisteredCounter("crawl/connections/unreachable", r),
		SeedsFromStore:         gometrics.NewRegisteredCounter("crawl/seeds/store", r),
		SeedsFromRPC:           gometrics.NewRegisteredCounter("crawl/seeds/rpc", r),
		SeedsFromDNS:           gometrics.NewRegisteredCounter("crawl/seeds/dns", r),
		SeedsFromConfig:        gometrics.NewRegisteredCounter("crawl/seeds/config", r),
		PassDuration:           gometrics.NewRegisteredTimer("crawl/pass/duration", r),
	}
}

// RecordOutcome tallies one dial outcome by its discovery status string
// ("up", "reachable", "down").
func (m *PassMetrics) RecordOutcome(status string) {
	m.ConnectionsAttempted.Inc(1)
	switch status {
	case "up":
		m.ConnectionsUp.Inc(1)
	case "reachable":
		m.ConnectionsReachable.Inc(1)
	default:
		m.ConnectionsUnreachable.Inc(1)
	}
}

// Time runs fn and records its duration against PassDuration.
func (m *PassMetrics) Time(fn func()) {
	start := time.Now()
	fn()
	m.PassDuration.UpdateSince(start)
}
