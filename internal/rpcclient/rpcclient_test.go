package rpcclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHostPortIPv4(t *testing.T) {
	p, ok := parseHostPort("203.0.113.7:8333")
	require.True(t, ok)
	require.Equal(t, Peer{IP: "203.0.113.7", Port: 8333}, p)
}

func TestParseHostPortBracketedIPv6(t *testing.T) {
	p, ok := parseHostPort("[2001:db8::1]:8333")
	require.True(t, ok)
	require.Equal(t, Peer{IP: "2001:db8::1", Port: 8333}, p)
}

func TestParseHostPortInvalid(t *testing.T) {
	_, ok := parseHostPort("not-an-address")
	require.False(t, ok)
}
