// Package rpcclient implements the RPCClient contract (spec.md §6.4): a
// JSON-RPC-1.0-over-HTTP client against a local full node, used only as one
// of several seed sources. Grounded on original_source/apps/crawler/src/rpc.py.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Peer is one (ip, port) pair returned by GetAllPeers.
type Peer struct {
	IP   string
	Port uint16
}

// LocalNodeInfo is what GetLocalNodeInfo returns (spec.md §6.4).
type LocalNodeInfo struct {
	LocalAddresses []Peer
	Version        int
	Subversion     string
	Connections    int
}

// RPCClient is the optional seed-source contract consumed by the Pass
// Controller (spec.md §6.4).
type RPCClient interface {
	GetAllPeers(ctx context.Context) ([]Peer, error)
	GetLocalNodeInfo(ctx context.Context) (LocalNodeInfo, error)
	TestConnection(ctx context.Context) bool
}

// HTTPClient is a JSON-RPC 1.0 client matching rpc.py's call shape: HTTP
// Basic auth, a single "result"/"error" envelope, and special-cased
// tolerance of getaddednodeinfo's -24 error code.
type HTTPClient struct {
	url        string
	user, pass string
	httpClient *http.Client
}

// New builds an HTTPClient against host:port with the given credentials.
func New(host, port, user, pass string) *HTTPClient {
	return &HTTPClient{
		url:        fmt.Sprintf("http://%s", net.JoinHostPort(host, port)),
		user:       user,
		pass:       pass,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: "crawler", Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.pass)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("rpcclient: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		// getaddednodeinfo returns code -24 when there are simply no added
		// nodes; treat that as an empty result, not a failure.
		if method == "getaddednodeinfo" && rpcResp.Error.Code == -24 {
			return json.RawMessage("[]"), nil
		}
		return nil, fmt.Errorf("rpcclient: %s: %s (%d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	return rpcResp.Result, nil
}

type peerInfoEntry struct {
	Addr string `json:"addr"`
}

type addedNodeInfoEntry struct {
	AddedNode string `json:"addednode"`
	Connected bool   `json:"connected"`
	Addresses []struct {
		Address string `json:"address"`
	} `json:"addresses"`
}

// GetAllPeers returns the union of connected peers (getpeerinfo) and
// manually-added, currently-connected nodes (getaddednodeinfo), deduped.
func (c *HTTPClient) GetAllPeers(ctx context.Context) ([]Peer, error) {
	seen := make(map[string]Peer)

	peerInfoRaw, err := c.call(ctx, "getpeerinfo", nil)
	if err != nil {
		return nil, err
	}
	var peerInfos []peerInfoEntry
	if err := json.Unmarshal(peerInfoRaw, &peerInfos); err != nil {
		return nil, fmt.Errorf("rpcclient: parse getpeerinfo: %w", err)
	}
	for _, p := range peerInfos {
		if peer, ok := parseHostPort(p.Addr); ok {
			seen[peer.IP+":"+fmt.Sprint(peer.Port)] = peer
		}
	}

	addedRaw, err := c.call(ctx, "getaddednodeinfo", nil)
	if err != nil {
		return nil, err
	}
	var added []addedNodeInfoEntry
	if err := json.Unmarshal(addedRaw, &added); err != nil {
		return nil, fmt.Errorf("rpcclient: parse getaddednodeinfo: %w", err)
	}
	for _, node := range added {
		if !node.Connected {
			continue
		}
		for _, addr := range node.Addresses {
			if peer, ok := parseHostPort(addr.Address); ok {
				seen[peer.IP+":"+fmt.Sprint(peer.Port)] = peer
			}
		}
	}

	out := make([]Peer, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out, nil
}

// parseHostPort parses both "ip:port" and "[ipv6]:port" forms (spec.md §6.4).
func parseHostPort(s string) (Peer, bool) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Peer{}, false
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Peer{}, false
	}
	return Peer{IP: host, Port: port}, true
}

type networkInfoResponse struct {
	Version         int    `json:"version"`
	Subversion      string `json:"subversion"`
	Connections     int    `json:"connections"`
	LocalAddresses []struct {
		Address string `json:"address"`
		Port    uint16 `json:"port"`
	} `json:"localaddresses"`
}

// GetLocalNodeInfo returns the local node's advertised addresses and basic
// version info (spec.md §6.4).
func (c *HTTPClient) GetLocalNodeInfo(ctx context.Context) (LocalNodeInfo, error) {
	raw, err := c.call(ctx, "getnetworkinfo", nil)
	if err != nil {
		return LocalNodeInfo{}, err
	}
	var info networkInfoResponse
	if err := json.Unmarshal(raw, &info); err != nil {
		return LocalNodeInfo{}, fmt.Errorf("rpcclient: parse getnetworkinfo: %w", err)
	}
	addrs := make([]Peer, 0, len(info.LocalAddresses))
	for _, a := range info.LocalAddresses {
		addrs = append(addrs, Peer{IP: a.Address, Port: a.Port})
	}
	return LocalNodeInfo{
		LocalAddresses: addrs,
		Version:        info.Version,
		Subversion:     info.Subversion,
		Connections:    info.Connections,
	}, nil
}

// TestConnection is the precondition gate: if false, the RPC seed source is
// skipped entirely (spec.md §6.4).
func (c *HTTPClient) TestConnection(ctx context.Context) bool {
	_, err := c.call(ctx, "getconnectioncount", nil)
	return err == nil
}

// ProbeReachable performs the 3-second raw TCP reachability check used to
// choose which local address to mark Up (spec.md §6.4,
// original_source/apps/crawler/src/crawler.py _test_address_reachable).
func ProbeReachable(ip string, port uint16) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, fmt.Sprint(port)), 3*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
