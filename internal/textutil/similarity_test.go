package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Restart the ROUTER", Normalize("  Restart\n\tthe   ROUTER  "))
	assert.Equal(t, "", Normalize("   \n\t  "))
	assert.Equal(t, "", Normalize(""))
}

func TestFingerprintIgnoresWhitespace(t *testing.T) {
	a := Fingerprint("Restart the router")
	b := Fingerprint("  Restart\nthe    router ")
	c := Fingerprint("Replace the router")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestSimilarityRatio(t *testing.T) {
	assert.Equal(t, 1.0, SimilarityRatio("restart the router", "restart the router"))
	assert.Equal(t, 0.0, SimilarityRatio("abc", "xyz"))

	// Shared material should land strictly between the extremes.
	ratio := SimilarityRatio("restart the router", "restart the modem")
	assert.Greater(t, ratio, 0.5)
	assert.Less(t, ratio, 1.0)
}

func TestMateriallyDifferent(t *testing.T) {
	t.Run("identical text is not different", func(t *testing.T) {
		assert.False(t, MateriallyDifferent("Restart the router", "restart  the ROUTER"))
	})

	t.Run("unrelated text is different", func(t *testing.T) {
		assert.True(t, MateriallyDifferent("restart the router", "update the driver and reboot"))
	})

	t.Run("empty candidates are vacuously different", func(t *testing.T) {
		assert.True(t, MateriallyDifferent("", ""))
		assert.True(t, MateriallyDifferent("", "restart the router"))
	})

	t.Run("tiny edits stay too similar", func(t *testing.T) {
		old := "please restart the router and wait two minutes before reconnecting"
		tweaked := "please restart the router and wait two minutes before reconnecting."
		assert.False(t, MateriallyDifferent(old, tweaked))
	})
}

func TestMateriallyDifferentAtThreshold(t *testing.T) {
	// At threshold 0 everything non-empty counts as a duplicate.
	assert.False(t, MateriallyDifferentAt("abc", "xyz", 0))
	// A strict threshold above 1 lets everything through.
	assert.True(t, MateriallyDifferentAt("same text", "same text", 1.01))
}
