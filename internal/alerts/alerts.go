// Package alerts implements the best-effort alert-processing POST invoked at
// the end of a pass (spec.md §4.5 step 8), grounded on
// original_source/apps/crawler/src/crawler.py's _process_alerts.
package alerts

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dingocoin/dingocoin-nodes-map/log"
)

const timeout = 10 * time.Second

// ProcessAlerts POSTs to the alert-processing endpoint with a Bearer token,
// swallowing every failure per spec.md §4.5 step 8 ("best-effort").
func ProcessAlerts(ctx context.Context, supabaseURL, serviceRoleKey, webPort string) {
	if supabaseURL == "" {
		return
	}
	url := alertsURL(supabaseURL, webPort)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		log.Debugw("alert request build failed", "error", err)
		return
	}
	if serviceRoleKey != "" {
		req.Header.Set("Authorization", "Bearer "+serviceRoleKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Warnw("alert processing request failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warnw("alert processing returned non-success", "status", resp.StatusCode)
	}
}

// alertsURL derives the alert-processing endpoint from supabaseURL, mirroring
// crawler.py's _process_alerts: a "kong:8000" internal docker URL is routed
// to the web service instead, localhost/127.0.0.1 stays on the local web
// port, and anything else is treated as a production supabase URL with its
// "/supabase" suffix stripped.
func alertsURL(supabaseURL, webPort string) string {
	if webPort == "" {
		webPort = "4000"
	}
	switch {
	case strings.Contains(supabaseURL, "kong:8000"):
		return fmt.Sprintf("http://web:%s/api/alerts/process", webPort)
	case strings.Contains(supabaseURL, "localhost"), strings.Contains(supabaseURL, "127.0.0.1"):
		return fmt.Sprintf("http://localhost:%s/api/alerts/process", webPort)
	default:
		base := strings.TrimSuffix(supabaseURL, "/")
		base = strings.TrimSuffix(base, "/supabase")
		return base + "/api/alerts/process"
	}
}

