// Package chainconfig loads the chain and crawler configuration consumed by
// the rest of the crawler from a YAML document plus environment overrides,
// mirroring the original project.config.yaml / load_config() shape.
package chainconfig

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChainConfig is immutable for the duration of a pass (spec.md §3).
type ChainConfig struct {
	Magic               [4]byte  `yaml:"-"`
	MagicHex            string   `yaml:"magic"`
	P2PPort             uint16   `yaml:"p2pPort"`
	ProtocolVersion     int32    `yaml:"protocolVersion"`
	FallbackVersions    []int32  `yaml:"fallbackVersions"`
	DNSSeeds            []string `yaml:"dnsSeeds"`
	StaticSeeds         []string `yaml:"staticSeeds"`
	UserAgentRegex      string   `yaml:"userAgentRegex"`
	UserAgentClientName string   `yaml:"userAgentClientName"`
	CurrentVersion      string   `yaml:"currentVersion"`
}

// CrawlerConfig tunes the crawl engine itself (spec.md §3). Durations are
// authored in the YAML document as Go duration strings ("10s") and parsed
// via UnmarshalYAML below, matching the original's plain-seconds fields but
// kept unambiguous rather than bare numbers.
type CrawlerConfig struct {
	MaxConcurrent          int
	ConnectionTimeout      time.Duration
	ExtendedTimeout        time.Duration
	MaxRetries             int
	InitialRetryDelay      time.Duration
	RetryBackoffMultiplier float64
	GetAddrDelayMs         int
	PruneAfterHours        int
	IntervalMinutes        int
	RequireVersionForSave  bool
}

type rawCrawlerConfig struct {
	MaxConcurrent          int     `yaml:"maxConcurrent"`
	ConnectionTimeout      string  `yaml:"connectionTimeout"`
	ExtendedTimeout        string  `yaml:"extendedTimeout"`
	MaxRetries             int     `yaml:"maxRetries"`
	InitialRetryDelay      string  `yaml:"initialRetryDelay"`
	RetryBackoffMultiplier float64 `yaml:"retryBackoffMultiplier"`
	GetAddrDelayMs         int     `yaml:"getaddrDelayMs"`
	PruneAfterHours        int     `yaml:"pruneAfterHours"`
	IntervalMinutes        int     `yaml:"intervalMinutes"`
	RequireVersionForSave  bool    `yaml:"requireVersionForSave"`
}

// UnmarshalYAML parses the duration-string fields into time.Duration.
func (c *CrawlerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw rawCrawlerConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	connTimeout, err := time.ParseDuration(raw.ConnectionTimeout)
	if err != nil {
		return fmt.Errorf("chainconfig: connectionTimeout: %w", err)
	}
	extTimeout, err := time.ParseDuration(raw.ExtendedTimeout)
	if err != nil {
		return fmt.Errorf("chainconfig: extendedTimeout: %w", err)
	}
	retryDelay, err := time.ParseDuration(raw.InitialRetryDelay)
	if err != nil {
		return fmt.Errorf("chainconfig: initialRetryDelay: %w", err)
	}
	*c = CrawlerConfig{
		MaxConcurrent:          raw.MaxConcurrent,
		ConnectionTimeout:      connTimeout,
		ExtendedTimeout:        extTimeout,
		MaxRetries:             raw.MaxRetries,
		InitialRetryDelay:      retryDelay,
		RetryBackoffMultiplier: raw.RetryBackoffMultiplier,
		GetAddrDelayMs:         raw.GetAddrDelayMs,
		PruneAfterHours:        raw.PruneAfterHours,
		IntervalMinutes:        raw.IntervalMinutes,
		RequireVersionForSave:  raw.RequireVersionForSave,
	}
	return nil
}

// Document is the top-level YAML shape, matching the original's
// project.config.yaml (chainConfig / crawlerConfig siblings).
type Document struct {
	ChainConfig   ChainConfig   `yaml:"chainConfig"`
	CrawlerConfig CrawlerConfig `yaml:"crawlerConfig"`
}

// RPCConfig is populated entirely from environment variables; missing
// credentials simply disable the RPC seed source (spec.md §3 Additions).
type RPCConfig struct {
	Host string
	Port string
	User string
	Pass string
}

// Enabled reports whether enough RPC configuration is present to attempt a
// connection at all.
func (r RPCConfig) Enabled() bool {
	return r.Host != "" && r.User != "" && r.Pass != ""
}

// Env groups the environment-derived knobs that sit alongside the YAML
// document (spec.md §6.7).
type Env struct {
	Development    bool
	WebPort        string
	RPC            RPCConfig
	NodeDBPath     string
	GeoIPDBPath    string
	GeoIPASNDBPath string
	SupabaseURL    string
	ServiceRoleKey string
}

// WebBase derives the base URL used for the version-override fetch
// (spec.md §6.5, §6.7) from the WEB_PORT environment variable. Alert
// dispatch builds its own URL from WebPort instead.
func (e *Env) WebBase() string {
	return fmt.Sprintf("http://localhost:%s", e.WebPort)
}

// Load reads a YAML config document from path and overlays environment
// overrides.
func Load(path string) (*Document, *Env, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("chainconfig: read %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("chainconfig: parse %s: %w", path, err)
	}
	if err := doc.ChainConfig.parseMagic(); err != nil {
		return nil, nil, err
	}
	return &doc, LoadEnv(), nil
}

// LoadEnv reads only the environment-derived configuration, for callers that
// already have a Document (e.g. tests).
func LoadEnv() *Env {
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "4000"
	}
	return &Env{
		Development: os.Getenv("NODE_ENV") == "development",
		WebPort:     webPort,
		RPC: RPCConfig{
			Host: os.Getenv("RPC_HOST"),
			Port: os.Getenv("RPC_PORT"),
			User: os.Getenv("RPC_USER"),
			Pass: os.Getenv("RPC_PASS"),
		},
		NodeDBPath:     envOr("DINGO_NODE_DB_PATH", "./data/nodes.db"),
		GeoIPDBPath:    envOr("DINGO_GEOIP_DB_PATH", "./data/GeoLite2-City.mmdb"),
		GeoIPASNDBPath: os.Getenv("DINGO_GEOIP_ASN_DB_PATH"),
		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		ServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *ChainConfig) parseMagic() error {
	hexStr := strings.TrimPrefix(c.MagicHex, "0x")
	if len(hexStr) != 8 {
		return fmt.Errorf("chainconfig: magic must be 4 bytes of hex, got %q", c.MagicHex)
	}
	var b [4]byte
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseUint(hexStr[i*2:i*2+2], 16, 8)
		if err != nil {
			return fmt.Errorf("chainconfig: invalid magic %q: %w", c.MagicHex, err)
		}
		b[i] = byte(v)
	}
	c.Magic = b
	return nil
}

// UserAgentMatcher compiles the configured regex once for reuse.
func (c *ChainConfig) UserAgentMatcher() (*regexp.Regexp, error) {
	return regexp.Compile(c.UserAgentRegex)
}

// StaticSeedAddr is one parsed entry from StaticSeeds (spec.md §6.6).
type StaticSeedAddr struct {
	IP   string
	Port uint16
}

// ParseStaticSeeds parses the configured static seed-address strings,
// accepting "a.b.c.d", "a.b.c.d:port", "[v6::addr]:port", and bare IPv6.
func (c *ChainConfig) ParseStaticSeeds() ([]StaticSeedAddr, error) {
	out := make([]StaticSeedAddr, 0, len(c.StaticSeeds))
	for _, s := range c.StaticSeeds {
		addr, err := parseSeedAddr(s, c.P2PPort)
		if err != nil {
			return nil, fmt.Errorf("chainconfig: static seed %q: %w", s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseSeedAddr(s string, defaultPort uint16) (StaticSeedAddr, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[") {
		host, portStr, err := net.SplitHostPort(s)
		if err != nil {
			return StaticSeedAddr{}, err
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return StaticSeedAddr{}, err
		}
		return StaticSeedAddr{IP: host, Port: uint16(port)}, nil
	}

	if ip := net.ParseIP(s); ip != nil {
		return StaticSeedAddr{IP: s, Port: defaultPort}, nil
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return StaticSeedAddr{}, fmt.Errorf("not a valid bare IP or host:port: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return StaticSeedAddr{}, err
	}
	return StaticSeedAddr{IP: host, Port: uint16(port)}, nil
}
