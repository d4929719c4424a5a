// Package dialer implements the Peer Dialer (spec.md §4.2): one connection
// attempt against one target with a specified protocol version and timeout.
package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dingocoin/dingocoin-nodes-map/internal/chainconfig"
	"github.com/dingocoin/dingocoin-nodes-map/internal/discovery"
	"github.com/dingocoin/dingocoin-nodes-map/internal/wireproto"
	"github.com/dingocoin/dingocoin-nodes-map/log"
)

const (
	readChunkSize       = 64 * 1024
	versionChunkTimeout = 2 * time.Second
	addrChunkTimeout    = 5 * time.Second
	addrOverallTimeout  = 60 * time.Second
)

// DialResult is the outcome of one dial attempt (spec.md §4.2).
type DialResult struct {
	Status    discovery.Status
	Outcome   discovery.DialOutcome
	LatencyMs float64
}

// TryDial performs one full dial-handshake-getaddr attempt against
// (ip, port) using protocolVersion and timeout, per spec.md §4.2.
func TryDial(ctx context.Context, cfg *chainconfig.ChainConfig, ip string, port uint16, protocolVersion int32, timeout time.Duration, startHeight int32, getaddrDelayMs int) DialResult {
	dialStart := time.Now()

	d := net.Dialer{Timeout: timeout}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return DialResult{Status: discovery.StatusUnreachable}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Debugw("close failed", "ip", ip, "port", port, "error", cerr)
		}
	}()

	tcpLatencyMs := float64(time.Since(dialStart).Microseconds()) / 1000.0

	versionFrame, err := wireproto.EncodeVersion(cfg, ip, port, startHeight, protocolVersion)
	if err != nil {
		log.Warnw("encode version failed", "ip", ip, "error", err)
		return DialResult{Status: discovery.StatusReachable, LatencyMs: tcpLatencyMs}
	}
	if _, err := conn.Write(versionFrame); err != nil {
		return DialResult{Status: discovery.StatusReachable, LatencyMs: tcpLatencyMs}
	}

	remainder, parsed, ok := readUntilVersion(conn, cfg, protocolVersion, timeout)
	if !ok {
		return DialResult{Status: discovery.StatusReachable, LatencyMs: tcpLatencyMs}
	}

	if verack, err := wireproto.EncodeVerAck(cfg); err == nil {
		_, _ = conn.Write(verack)
	}

	time.Sleep(time.Duration(getaddrDelayMs) * time.Millisecond)

	getaddr, err := wireproto.EncodeGetAddr(cfg)
	if err != nil {
		return upResult(parsed, nil, dialStart)
	}
	if _, err := conn.Write(getaddr); err != nil {
		return upResult(parsed, nil, dialStart)
	}

	peers := readUntilAddr(remainder, conn, cfg, protocolVersion)
	return upResult(parsed, peers, dialStart)
}

func upResult(parsed wireproto.ParsedVersion, peers []wireproto.NetAddr, dialStart time.Time) DialResult {
	pv := parsed.ProtocolVersion
	svc := parsed.Services
	sh := parsed.StartHeight
	ua := parsed.UserAgent
	latency := float64(time.Since(dialStart).Microseconds()) / 1000.0

	discoveryPeers := make([]discovery.NetAddr, 0, len(peers))
	for _, p := range peers {
		discoveryPeers = append(discoveryPeers, discovery.NetAddr{
			IP: p.IP, Port: p.Port, Services: p.Services, Timestamp: p.Timestamp,
		})
	}

	return DialResult{
		Status:    discovery.StatusUp,
		LatencyMs: latency,
		Outcome: discovery.DialOutcome{
			Status:          discovery.StatusUp,
			ProtocolVersion: &pv,
			Services:        &svc,
			StartHeight:     &sh,
			UserAgent:       &ua,
			LatencyMs:       &latency,
			Peers:           discoveryPeers,
		},
	}
}

// readUntilVersion drains conn in chunks (spec.md §4.2 step 4/5) until a
// complete version frame is buffered, the connection closes, or timeout
// elapses. Returns the unconsumed remainder of the buffer so callers can
// keep scanning it for frames that arrived in the same read (e.g. a verack
// riding along with the version frame).
func readUntilVersion(conn net.Conn, cfg *chainconfig.ChainConfig, pver int32, overall time.Duration) (remainder []byte, parsed wireproto.ParsedVersion, ok bool) {
	deadline := time.Now().Add(overall)
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)

	for time.Now().Before(deadline) {
		found, badMagic, payload, rest := scanForCommand(buf, cfg, "version")
		if badMagic {
			return nil, wireproto.ParsedVersion{}, false
		}
		if found {
			pv, perr := wireproto.ParseVersion(payload, uint32(pver))
			if perr != nil {
				return nil, wireproto.ParsedVersion{}, false
			}
			return rest, pv, true
		}
		buf = rest

		chunkDeadline := time.Now().Add(versionChunkTimeout)
		if chunkDeadline.After(deadline) {
			chunkDeadline = deadline
		}
		_ = conn.SetReadDeadline(chunkDeadline)

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return nil, wireproto.ParsedVersion{}, false
		}
		if n == 0 {
			return nil, wireproto.ParsedVersion{}, false
		}
	}
	return nil, wireproto.ParsedVersion{}, false
}

// readUntilAddr reads for up to 60s (5s per-chunk sub-timeout), retaining
// leftover bytes from the version phase (spec.md §4.2 step 7). Returns nil
// (not an error) if no addr frame ever arrives.
func readUntilAddr(leftover []byte, conn net.Conn, cfg *chainconfig.ChainConfig, pver int32) []wireproto.NetAddr {
	deadline := time.Now().Add(addrOverallTimeout)
	buf := append([]byte(nil), leftover...)
	chunk := make([]byte, readChunkSize)

	for time.Now().Before(deadline) {
		found, badMagic, payload, rest := scanForCommand(buf, cfg, "addr")
		if badMagic {
			return nil
		}
		if found {
			addrs, err := wireproto.ParseAddr(payload, uint32(pver))
			if err != nil {
				return nil
			}
			return addrs
		}
		buf = rest

		chunkDeadline := time.Now().Add(addrChunkTimeout)
		if chunkDeadline.After(deadline) {
			chunkDeadline = deadline
		}
		_ = conn.SetReadDeadline(chunkDeadline)

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return nil
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

// scanForCommand decodes frames out of buf until it finds one matching want,
// runs out of buffered bytes, or hits a bad-magic frame. It returns the
// unconsumed remainder either way so the caller can append the next read to
// it; frames other than want are silently discarded once decoded.
func scanForCommand(buf []byte, cfg *chainconfig.ChainConfig, want string) (found bool, badMagic bool, payload []byte, rest []byte) {
	for {
		cmd, p, consumed, status := wireproto.Decode(buf, cfg.Magic)
		switch status {
		case wireproto.StatusBadMagic:
			return false, true, nil, nil
		case wireproto.StatusIncomplete:
			return false, false, nil, buf
		case wireproto.StatusOK:
			buf = buf[consumed:]
			if cmd == want {
				return true, false, p, buf
			}
			// Not the frame we're waiting for; keep scanning the remainder.
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
