// Package wireproto implements the frame codec (spec.md §4.1): the 24-byte
// header framing shared by Bitcoin-derived gossip networks, and the
// version/verack/getaddr/addr payload bodies built on top of
// github.com/btcsuite/btcd/wire.
package wireproto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dingocoin/dingocoin-nodes-map/internal/chainconfig"
)

const headerLen = 24

// DecodeStatus reports the outcome of a single Decode call.
type DecodeStatus int

const (
	// StatusIncomplete means fewer bytes than a full frame are buffered;
	// the caller must supply more bytes and retry.
	StatusIncomplete DecodeStatus = iota
	// StatusBadMagic means the header's magic does not match the configured
	// network; the caller must discard the connection without resyncing.
	StatusBadMagic
	// StatusOK means a complete frame was decoded.
	StatusOK
)

// Decode attempts to parse one complete frame from the front of buf against
// the configured network magic. It never consumes a partial frame.
func Decode(buf []byte, magic [4]byte) (command string, payload []byte, consumed int, status DecodeStatus) {
	if len(buf) < headerLen {
		return "", nil, 0, StatusIncomplete
	}
	if !bytes.Equal(buf[0:4], magic[:]) {
		return "", nil, 0, StatusBadMagic
	}
	length := binary.LittleEndian.Uint32(buf[16:20])
	total := headerLen + int(length)
	if len(buf) < total {
		return "", nil, 0, StatusIncomplete
	}
	command = commandString(buf[4:16])
	payload = buf[headerLen:total]
	return command, payload, total, StatusOK
}

func commandString(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	return string(b[:end])
}

// Encode assembles a full frame: magic, null-padded 12-byte command, little
// endian payload length, double-SHA256 checksum (first four bytes), and the
// payload itself. Checksum is always computed correctly on write even though
// Decode never verifies it on read (spec.md §4.1, §9 Open Questions).
func Encode(magic [4]byte, command string, payload []byte) ([]byte, error) {
	if len(command) > 12 {
		return nil, fmt.Errorf("wireproto: command %q exceeds 12 bytes", command)
	}
	out := make([]byte, headerLen+len(payload))
	copy(out[0:4], magic[:])
	copy(out[4:16], command)
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(payload)))
	sum := chainhash.DoubleHashB(payload)
	copy(out[20:24], sum[:4])
	copy(out[headerLen:], payload)
	return out, nil
}

const (
	cmdVersion = "version"
	cmdVerAck  = "verack"
	cmdGetAddr = "getaddr"
	cmdAddr    = "addr"

	// defaultUserAgent identifies this crawler to peers; it is never parsed
	// back, only the peer's own user agent matters to the spec.
	defaultUserAgent = "/dingo-crawler:1.0.0/"
)

// EncodeVersion builds a version frame using the supplied protocol version
// (falling back to the chain config's primary version when protocolOverride
// is zero), per spec.md §4.1.
func EncodeVersion(cfg *chainconfig.ChainConfig, peerIP string, peerPort uint16, startHeight int32, protocolOverride int32) ([]byte, error) {
	pver := cfg.ProtocolVersion
	if protocolOverride != 0 {
		pver = protocolOverride
	}

	me := wire.NewNetAddressIPPort(net.IPv4zero, 0, wire.SFNodeNetwork)
	you := wire.NewNetAddressIPPort(parseIPOrZero(peerIP), peerPort, wire.SFNodeNetwork)

	nonce, err := wire.RandomUint64()
	if err != nil {
		return nil, fmt.Errorf("wireproto: generate nonce: %w", err)
	}

	msg := wire.NewMsgVersion(me, you, nonce, startHeight)
	msg.ProtocolVersion = int32(pver)
	msg.UserAgent = defaultUserAgent
	msg.Timestamp = time.Now()

	var buf bytes.Buffer
	if err := msg.BtcEncode(&buf, uint32(pver), wire.LatestEncoding); err != nil {
		return nil, fmt.Errorf("wireproto: encode version: %w", err)
	}
	return Encode(cfg.Magic, cmdVersion, buf.Bytes())
}

// EncodeVerAck builds a verack frame (empty payload).
func EncodeVerAck(cfg *chainconfig.ChainConfig) ([]byte, error) {
	return Encode(cfg.Magic, cmdVerAck, nil)
}

// EncodeGetAddr builds a getaddr frame (empty payload).
func EncodeGetAddr(cfg *chainconfig.ChainConfig) ([]byte, error) {
	return Encode(cfg.Magic, cmdGetAddr, nil)
}

func parseIPOrZero(ip string) net.IP {
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed
	}
	return net.IPv4zero
}

// ParsedVersion is the subset of a version message the crawler captures.
type ParsedVersion struct {
	ProtocolVersion int32
	Services        uint64
	StartHeight     int32
	UserAgent       string
}

// ParseVersion decodes a version payload (spec.md §4.1 parse_version).
func ParseVersion(payload []byte, pver uint32) (ParsedVersion, error) {
	var msg wire.MsgVersion
	if err := msg.BtcDecode(bytes.NewReader(payload), pver, wire.LatestEncoding); err != nil {
		return ParsedVersion{}, fmt.Errorf("wireproto: decode version: %w", err)
	}
	return ParsedVersion{
		ProtocolVersion: msg.ProtocolVersion,
		Services:        uint64(msg.Services),
		StartHeight:     msg.LastBlock,
		UserAgent:       msg.UserAgent,
	}, nil
}

// NetAddr mirrors the (ip, port, services, timestamp) tuple carried inside
// addr payloads (spec.md §3).
type NetAddr struct {
	IP        string
	Port      uint16
	Services  uint64
	Timestamp time.Time
}

// ParseAddr decodes an addr payload into its NetAddr list, handling both
// IPv4-mapped and native IPv6 addresses via wire.NetAddress's own decoding
// (spec.md §4.1 parse_addr).
func ParseAddr(payload []byte, pver uint32) ([]NetAddr, error) {
	var msg wire.MsgAddr
	if err := msg.BtcDecode(bytes.NewReader(payload), pver, wire.LatestEncoding); err != nil {
		return nil, fmt.Errorf("wireproto: decode addr: %w", err)
	}
	out := make([]NetAddr, 0, len(msg.AddrList))
	for _, a := range msg.AddrList {
		out = append(out, NetAddr{
			IP:        a.IP.String(),
			Port:      a.Port,
			Services:  uint64(a.Services),
			Timestamp: a.Timestamp,
		})
	}
	return out, nil
}
