package pass

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeVersionReflexive(t *testing.T) {
	require.Equal(t, NormalizeVersion("1.18.0"), NormalizeVersion("1.18.0"))
}

func TestNormalizeVersionPadding(t *testing.T) {
	require.Equal(t, NormalizeVersion("1.18.0"), NormalizeVersion("1.18.0.0"))
}

func TestNormalizeVersionStripsVPrefix(t *testing.T) {
	require.Equal(t, NormalizeVersion("1.18.0"), NormalizeVersion("v1.18.0"))
	require.Equal(t, NormalizeVersion("1.18.0"), NormalizeVersion("V1.18.0"))
}

func TestNormalizeVersionReleaseCandidateSuffix(t *testing.T) {
	require.Equal(t, NormalizeVersion("1.18.0"), NormalizeVersion("1.18.0rc1"))
}

func TestVersionsMatchScenarioS6(t *testing.T) {
	require.True(t, VersionsMatch("1.18.0", "1.18.0.0"))
}

func TestVersionsMatchDiffer(t *testing.T) {
	require.False(t, VersionsMatch("1.18.0", "1.18.1"))
}

func TestParseUserAgentTwoGroups(t *testing.T) {
	re := regexp.MustCompile(`^/([A-Za-z]+):([\d.]+)/$`)
	name, version := ParseUserAgent(re, "/Satoshi:25.0.0/", "Unknown")
	require.Equal(t, "Satoshi", name)
	require.Equal(t, "25.0.0", version)
}

func TestParseUserAgentOneGroup(t *testing.T) {
	re := regexp.MustCompile(`^/Satoshi:([\d.]+)/$`)
	name, version := ParseUserAgent(re, "/Satoshi:25.0.0/", "Satoshi")
	require.Equal(t, "Satoshi", name)
	require.Equal(t, "25.0.0", version)
}

func TestParseUserAgentNoMatch(t *testing.T) {
	re := regexp.MustCompile(`^/Satoshi:([\d.]+)/$`)
	name, version := ParseUserAgent(re, "garbage", "Satoshi")
	require.Equal(t, "Unknown", name)
	require.Equal(t, "garbage", version)
}
