// Package pass implements the Pass Controller (spec.md §4.5): seeding the
// Discovery Set from every source, running the bounded worker pool, and
// flushing results to the NodeStore.
package pass

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dingocoin/dingocoin-nodes-map/internal/alerts"
	"github.com/dingocoin/dingocoin-nodes-map/internal/chainconfig"
	"github.com/dingocoin/dingocoin-nodes-map/internal/crawlmetrics"
	"github.com/dingocoin/dingocoin-nodes-map/internal/discovery"
	"github.com/dingocoin/dingocoin-nodes-map/internal/geoip"
	"github.com/dingocoin/dingocoin-nodes-map/internal/nodestore"
	"github.com/dingocoin/dingocoin-nodes-map/internal/retry"
	"github.com/dingocoin/dingocoin-nodes-map/internal/rpcclient"
	"github.com/dingocoin/dingocoin-nodes-map/internal/versionfetch"
	"github.com/dingocoin/dingocoin-nodes-map/log"
)

// Re-seed thresholds are magic numbers in the source, not config-driven;
// kept as constants per spec.md §9 Open Questions. The addr-wait ceiling is
// the dialer's addrOverallTimeout.
const (
	reseedDownAfter    = 30 * time.Minute
	reseedDefaultAfter = 10 * time.Minute
)

// Controller owns one pass's lifecycle, wiring the Discovery Set to every
// external collaborator specified in spec.md §6.
type Controller struct {
	Chain   *chainconfig.ChainConfig
	Crawler *chainconfig.CrawlerConfig
	Env     *chainconfig.Env

	Store nodestore.NodeStore
	Geo   geoip.GeoLookup
	RPC   rpcclient.RPCClient // nil when RPC is not configured
}

// RunSinglePass executes one full seed → crawl → flush cycle (spec.md §4.5).
// A fresh PassMetrics is constructed for every call so per-pass counters
// never accumulate across passes (spec.md §4.5 step 2).
func (c *Controller) RunSinglePass(ctx context.Context) error {
	metrics := crawlmetrics.NewPassMetrics()
	start := time.Now()
	defer func() { metrics.PassDuration.UpdateSince(start) }()

	currentVersion := c.Chain.CurrentVersion
	if v, ok := versionfetch.FetchCurrentVersion(ctx, c.Env.WebBase()); ok {
		currentVersion = v
	}

	set := discovery.NewSet(c.Env.Development)

	c.seedFromStore(set, metrics)
	c.seedFromRPC(ctx, set, metrics)
	c.markLocalNodeUp(ctx, set)
	c.seedFromDNS(set, metrics)
	c.seedFromConfig(set, metrics)

	if set.PendingLen() == 0 {
		log.Infow("pass found nothing to seed, skipping")
		return nil
	}

	c.crawl(ctx, set, metrics)

	c.flush(set, currentVersion)

	if err := c.Store.CreateNetworkSnapshot(); err != nil {
		log.Warnw("network snapshot failed", "error", err)
	}
	if err := c.Store.PruneStaleNodes(c.Crawler.PruneAfterHours); err != nil {
		log.Warnw("prune failed", "error", err)
	}

	alerts.ProcessAlerts(ctx, c.Env.SupabaseURL, c.Env.ServiceRoleKey, c.Env.WebPort)
	return nil
}

// seedFromStore re-seeds pending from the persistent store, applying the
// re-seed policy of spec.md §4.5.
func (c *Controller) seedFromStore(set *discovery.Set, metrics *crawlmetrics.PassMetrics) {
	candidates, err := c.Store.GetAllNodes()
	if err != nil {
		log.Warnw("seed from store failed", "error", err)
		return
	}
	now := time.Now()
	for _, node := range candidates {
		since := now.Sub(node.LastSeen)
		shouldSeed := false
		switch node.Status {
		case "up", "reachable":
			shouldSeed = true
		case "down":
			shouldSeed = since > reseedDownAfter
		default:
			shouldSeed = since > reseedDefaultAfter
		}
		if shouldSeed {
			if set.Admit(node.IP, node.Port) {
				metrics.SeedsFromStore.Inc(1)
			}
		}
	}
}

func (c *Controller) seedFromRPC(ctx context.Context, set *discovery.Set, metrics *crawlmetrics.PassMetrics) {
	if c.RPC == nil || !c.RPC.TestConnection(ctx) {
		return
	}
	peers, err := c.RPC.GetAllPeers(ctx)
	if err != nil {
		log.Warnw("seed from rpc failed", "error", err)
		return
	}
	for _, p := range peers {
		if set.Admit(p.IP, p.Port) {
			metrics.SeedsFromRPC.Inc(1)
		}
	}
}

// markLocalNodeUp marks the local node's single best externally-reachable
// address as Up directly, bypassing the handshake (spec.md §6.4), and
// removes its other addresses from consideration.
func (c *Controller) markLocalNodeUp(ctx context.Context, set *discovery.Set) {
	if c.RPC == nil {
		return
	}
	info, err := c.RPC.GetLocalNodeInfo(ctx)
	if err != nil || len(info.LocalAddresses) == 0 {
		return
	}

	var ipv4Candidates, ipv6Candidates []rpcclient.Peer
	for _, addr := range info.LocalAddresses {
		if parsed := net.ParseIP(addr.IP); parsed != nil && parsed.To4() != nil {
			ipv4Candidates = append(ipv4Candidates, addr)
		} else {
			ipv6Candidates = append(ipv6Candidates, addr)
		}
	}

	chosen, found := firstReachable(ipv4Candidates)
	if !found {
		chosen, found = firstReachable(ipv6Candidates)
	}
	if !found {
		chosen = info.LocalAddresses[0]
		found = true
	}

	set.MarkUp(chosen.IP, chosen.Port)
	for _, addr := range info.LocalAddresses {
		if addr == chosen {
			continue
		}
		set.MarkCrawled(addr.IP, addr.Port)
	}
}

func firstReachable(candidates []rpcclient.Peer) (rpcclient.Peer, bool) {
	for _, addr := range candidates {
		if rpcclient.ProbeReachable(addr.IP, addr.Port) {
			return addr, true
		}
	}
	return rpcclient.Peer{}, false
}

func (c *Controller) seedFromDNS(set *discovery.Set, metrics *crawlmetrics.PassMetrics) {
	for _, seed := range c.Chain.DNSSeeds {
		ips, err := net.LookupHost(seed)
		if err != nil {
			log.Warnw("dns seed lookup failed", "seed", seed, "error", err)
			continue
		}
		for _, ip := range ips {
			if set.Admit(ip, c.Chain.P2PPort) {
				metrics.SeedsFromDNS.Inc(1)
			}
		}
	}
}

func (c *Controller) seedFromConfig(set *discovery.Set, metrics *crawlmetrics.PassMetrics) {
	addrs, err := c.Chain.ParseStaticSeeds()
	if err != nil {
		log.Warnw("static seed parse failed", "error", err)
		return
	}
	for _, a := range addrs {
		if set.Admit(a.IP, a.Port) {
			metrics.SeedsFromConfig.Inc(1)
		}
	}
}

// crawl drains pending in bounded batches until empty (spec.md §4.5 step 4).
func (c *Controller) crawl(ctx context.Context, set *discovery.Set, metrics *crawlmetrics.PassMetrics) {
	for set.PendingLen() > 0 {
		batch := set.TakeBatch(c.Crawler.MaxConcurrent)
		if len(batch) == 0 {
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, target := range batch {
			target := target
			g.Go(func() error {
				c.crawlOne(gctx, set, target, metrics)
				return nil // tasks must never raise to the pool (spec.md §4.5 step 4)
			})
		}
		_ = g.Wait()
	}
}

func (c *Controller) crawlOne(ctx context.Context, set *discovery.Set, target discovery.Target, metrics *crawlmetrics.PassMetrics) {
	result := retry.DialWithRetry(ctx, c.Chain, c.Crawler, target.IP, target.Port, 0)

	outcome := result.Outcome
	outcome.Status = result.Status
	if outcome.LatencyMs == nil && result.LatencyMs != 0 {
		latency := result.LatencyMs
		outcome.LatencyMs = &latency
	}

	set.Record(target, outcome)
	metrics.RecordOutcome(result.Status.String())
}

// flush writes every known NodeInfo to the store per spec.md §4.5 step 5.
func (c *Controller) flush(set *discovery.Set, currentVersion string) {
	re, err := c.Chain.UserAgentMatcher()
	if err != nil {
		log.Errorw("user agent regex invalid, skipping flush", "error", err)
		return
	}

	for _, node := range set.Nodes() {
		if c.Crawler.RequireVersionForSave && node.ProtocolVersion == nil {
			log.Debugw("skipping node without version data", "key", node.Key())
			continue
		}

		rec := nodestore.NodeRecord{
			IP:              node.IP,
			Port:            node.Port,
			Status:          node.Status.String(),
			LastSeen:        node.LastSeen,
			FirstSeen:       node.FirstSeen,
			TimesSeen:       node.TimesSeen,
			ProtocolVersion: node.ProtocolVersion,
			Services:        node.Services,
			StartHeight:     node.StartHeight,
			UserAgentRaw:    node.UserAgent,
			LatencyMs:       node.LatencyMs,
		}

		if node.UserAgent != nil {
			clientName, clientVersion := ParseUserAgent(re, *node.UserAgent, c.Chain.UserAgentClientName)
			rec.ClientName = clientName
			rec.ClientVersion = clientVersion
			rec.IsCurrentVersion = VersionsMatch(currentVersion, clientVersion)
		}

		if c.Geo != nil {
			if geo, err := c.Geo.Lookup(node.IP); err == nil {
				rec.CountryCode = geo.CountryCode
				rec.CountryName = geo.CountryName
				rec.Region = geo.Region
				rec.City = geo.City
				rec.Latitude = geo.Latitude
				rec.Longitude = geo.Longitude
				rec.Timezone = geo.Timezone
				rec.ISP = geo.ISP
				rec.Org = geo.Org
				rec.ASN = geo.ASN
				rec.ASNOrg = geo.ASNOrg
			}
		}

		nodeID, err := c.Store.UpsertNode(rec)
		if err != nil {
			log.Warnw("upsert node failed", "key", node.Key(), "error", err)
			continue
		}
		isOnline := node.Status == discovery.StatusUp
		if err := c.Store.CreateNodeSnapshot(nodeID, isOnline, node.LatencyMs, node.StartHeight); err != nil {
			log.Warnw("create node snapshot failed", "nodeId", nodeID, "error", err)
		}
	}
}
