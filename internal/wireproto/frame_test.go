package wireproto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dingocoin/dingocoin-nodes-map/internal/chainconfig"
)

var testMagic = [4]byte{0xfa, 0xbf, 0xb5, 0xda}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello world")
	frame, err := Encode(testMagic, "getaddr", payload)
	require.NoError(t, err)

	cmd, decoded, consumed, status := Decode(frame, testMagic)
	require.Equal(t, StatusOK, status)
	require.Equal(t, "getaddr", cmd)
	require.Equal(t, payload, decoded)
	require.Equal(t, len(frame), consumed)
}

func TestDecodeIncompleteHeader(t *testing.T) {
	_, _, _, status := Decode(make([]byte, 10), testMagic)
	require.Equal(t, StatusIncomplete, status)
}

func TestDecodeIncompletePayload(t *testing.T) {
	frame, err := Encode(testMagic, "addr", []byte("0123456789"))
	require.NoError(t, err)

	_, _, _, status := Decode(frame[:len(frame)-3], testMagic)
	require.Equal(t, StatusIncomplete, status)
}

func TestDecodeBadMagic(t *testing.T) {
	frame, err := Encode(testMagic, "version", nil)
	require.NoError(t, err)

	otherMagic := [4]byte{0, 0, 0, 0}
	_, _, _, status := Decode(frame, otherMagic)
	require.Equal(t, StatusBadMagic, status)
}

func TestDecodeTwoFramesBack(t *testing.T) {
	f1, err := Encode(testMagic, "verack", nil)
	require.NoError(t, err)
	f2, err := Encode(testMagic, "getaddr", nil)
	require.NoError(t, err)

	buf := append(append([]byte{}, f1...), f2...)

	cmd, _, consumed, status := Decode(buf, testMagic)
	require.Equal(t, StatusOK, status)
	require.Equal(t, "verack", cmd)

	buf = buf[consumed:]
	cmd, _, _, status = Decode(buf, testMagic)
	require.Equal(t, StatusOK, status)
	require.Equal(t, "getaddr", cmd)
}

func TestVersionPayloadRoundTrip(t *testing.T) {
	cfg := &chainconfig.ChainConfig{
		Magic:           testMagic,
		ProtocolVersion: 70016,
	}
	frame, err := EncodeVersion(cfg, "203.0.113.7", 8333, 12345, 0)
	require.NoError(t, err)

	cmd, payload, _, status := Decode(frame, testMagic)
	require.Equal(t, StatusOK, status)
	require.Equal(t, "version", cmd)

	parsed, err := ParseVersion(payload, 70016)
	require.NoError(t, err)
	require.EqualValues(t, 70016, parsed.ProtocolVersion)
	require.EqualValues(t, 12345, parsed.StartHeight)
	require.Equal(t, defaultUserAgent, parsed.UserAgent)
}
