package chainconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMagic(t *testing.T) {
	c := ChainConfig{MagicHex: "0xfabfb5da"}
	require.NoError(t, c.parseMagic())
	require.Equal(t, [4]byte{0xfa, 0xbf, 0xb5, 0xda}, c.Magic)
}

func TestParseMagicRejectsWrongLength(t *testing.T) {
	c := ChainConfig{MagicHex: "0xfabf"}
	require.Error(t, c.parseMagic())
}

func TestParseStaticSeeds(t *testing.T) {
	c := ChainConfig{
		P2PPort: 8333,
		StaticSeeds: []string{
			"203.0.113.7",
			"203.0.113.8:9333",
			"[2001:db8::1]:9333",
			"2001:db8::2",
		},
	}
	addrs, err := c.ParseStaticSeeds()
	require.NoError(t, err)
	require.Equal(t, []StaticSeedAddr{
		{IP: "203.0.113.7", Port: 8333},
		{IP: "203.0.113.8", Port: 9333},
		{IP: "2001:db8::1", Port: 9333},
		{IP: "2001:db8::2", Port: 8333},
	}, addrs)
}

func TestRPCConfigEnabled(t *testing.T) {
	require.False(t, RPCConfig{}.Enabled())
	require.True(t, RPCConfig{Host: "localhost", User: "u", Pass: "p"}.Enabled())
}
