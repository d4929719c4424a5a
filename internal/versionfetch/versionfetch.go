// Package versionfetch implements the best-effort "current version" HTTP
// override fetch (spec.md §6.5).
package versionfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dingocoin/dingocoin-nodes-map/log"
)

const timeout = 10 * time.Second

type chainConfigResponse struct {
	CurrentVersion string `json:"currentVersion"`
}

// FetchCurrentVersion performs a best-effort GET against
// <webBase>/api/config/chain; any failure returns ("", false) and the
// caller keeps the chain config's default version for the pass.
func FetchCurrentVersion(ctx context.Context, webBase string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/config/chain", webBase)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Debugw("version fetch request build failed", "error", err)
		return "", false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Debugw("version fetch failed", "error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debugw("version fetch non-200", "status", resp.StatusCode)
		return "", false
	}

	var body chainConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Debugw("version fetch decode failed", "error", err)
		return "", false
	}
	if body.CurrentVersion == "" {
		return "", false
	}
	return body.CurrentVersion, true
}
