package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdmitDeduplicatesAgainstPendingAndCrawled(t *testing.T) {
	s := NewSet(false)
	require.True(t, s.Admit("203.0.113.7", 8333))
	require.False(t, s.Admit("203.0.113.7", 8333), "already pending")

	batch := s.TakeBatch(10)
	require.Len(t, batch, 1)
	s.Record(batch[0], DialOutcome{Status: StatusUp})

	require.False(t, s.Admit("203.0.113.7", 8333), "already crawled")
}

func TestTakeBatchRemovesFromPendingImmediately(t *testing.T) {
	// Invariant from spec.md §4.4/§9: a key leaves pending the moment it is
	// taken, before any worker inspects or mutates its NodeInfo, and does
	// not enter crawled until Record runs at the end of its dial.
	s := NewSet(false)
	s.Admit("203.0.113.7", 8333)
	require.Equal(t, 1, s.PendingLen())

	batch := s.TakeBatch(10)
	require.Equal(t, 0, s.PendingLen(), "must leave pending immediately on take")

	s.Record(batch[0], DialOutcome{Status: StatusUp})
	require.False(t, s.Admit("203.0.113.7", 8333), "crawled keys are never re-admitted")
}

func TestRecordPromotesStatus(t *testing.T) {
	s := NewSet(false)
	s.Admit("203.0.113.7", 8333)
	target := s.TakeBatch(1)[0]

	s.Record(target, DialOutcome{Status: StatusReachable})
	nodes := s.Nodes()
	require.Len(t, nodes, 1)
	require.Equal(t, StatusReachable, nodes[0].Status)
}

func TestRecordOnUpAdmitsPeers(t *testing.T) {
	s := NewSet(false)
	s.Admit("203.0.113.7", 8333)
	target := s.TakeBatch(1)[0]

	s.Record(target, DialOutcome{
		Status: StatusUp,
		Peers: []NetAddr{
			{IP: "203.0.113.8", Port: 8333},
			{IP: "203.0.113.9", Port: 8333},
		},
	})

	require.Equal(t, 2, s.PendingLen())
}

func TestStatusPromoteOrdering(t *testing.T) {
	require.Equal(t, StatusReachable, StatusUnreachable.Promote(StatusReachable))
	require.Equal(t, StatusUp, StatusReachable.Promote(StatusUp))
	require.Equal(t, StatusUp, StatusUp.Promote(StatusUnreachable))
}

func TestValidIPRejectsLoopbackAndLinkLocalV6(t *testing.T) {
	require.False(t, ValidIP("::1", false))
	require.False(t, ValidIP("fe80::1", false))
	require.False(t, ValidIP("fc00::1", false))
	require.False(t, ValidIP("fd12::1", false))
	require.True(t, ValidIP("2001:db8::1", false))
}

func TestValidIPRejectsZeroNet(t *testing.T) {
	require.False(t, ValidIP("0.1.2.3", false))
	require.False(t, ValidIP("0.1.2.3", true))
}

func TestValidIPPrivateGatedByDevelopmentMode(t *testing.T) {
	require.False(t, ValidIP("10.0.0.1", false))
	require.True(t, ValidIP("10.0.0.1", true))
	require.False(t, ValidIP("192.168.1.1", false))
	require.True(t, ValidIP("192.168.1.1", true))
	require.False(t, ValidIP("127.0.0.1", false))
	require.True(t, ValidIP("127.0.0.1", true))
}

func TestValidIPAcceptsPublic(t *testing.T) {
	require.True(t, ValidIP("203.0.113.7", false))
}
