package cryptox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.Len(t, tok, 43) // 32 bytes base64url, no padding
	require.NotContains(t, tok, "=")

	other, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.NotEqual(t, tok, other)

	_, err = GenerateToken(0)
	require.Error(t, err)
	_, err = GenerateToken(-1)
	require.Error(t, err)
}

func TestFingerprintToken(t *testing.T) {
	t.Parallel()

	fp := FingerprintToken("some-token")
	require.Len(t, fp, 43)
	require.Equal(t, fp, FingerprintToken("some-token"), "fingerprint must be deterministic")
	require.NotEqual(t, fp, FingerprintToken("some-token2"))
}

func TestCompareSecurely(t *testing.T) {
	t.Parallel()

	require.True(t, CompareSecurely("", ""))
	require.True(t, CompareSecurely("secret", "secret"))
	require.False(t, CompareSecurely("secret", "Secret"))
	require.False(t, CompareSecurely("secret", "secret "))
	require.False(t, CompareSecurely("short", "longer-value"))
}

// TestCompareSecurelyTiming checks that the comparison cost does not track
// the position of the first differing byte. The bound is deliberately loose:
// we only want to catch a short-circuiting byte loop, not benchmark the
// scheduler.
func TestCompareSecurelyTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing measurement skipped in -short mode")
	}

	const (
		iterations = 20000
		size       = 64
	)
	reference := strings.Repeat("a", size)

	measure := func(candidate string) time.Duration {
		// Warm-up pass to stabilise caches.
		for range 1000 {
			CompareSecurely(reference, candidate)
		}
		start := time.Now()
		for range iterations {
			CompareSecurely(reference, candidate)
		}
		return time.Since(start)
	}

	// Mismatch at the first byte vs mismatch at the last byte.
	early := measure("b" + strings.Repeat("a", size-1))
	late := measure(strings.Repeat("a", size-1) + "b")

	ratio := float64(early) / float64(late)
	require.Greater(t, ratio, 0.2, "early-mismatch compare suspiciously fast")
	require.Less(t, ratio, 5.0, "late-mismatch compare suspiciously slow")
}
