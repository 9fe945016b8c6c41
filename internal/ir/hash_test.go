package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	poly := Polygon{
		Geometry: map[string]any{"type": "Point", "coordinates": []any{1, 2}},
		Color:    "#f00",
	}

	fp1, err := Fingerprint(DomainPolygon, poly)
	require.NoError(t, err)
	fp2, err := Fingerprint(DomainPolygon, poly)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "fingerprint must be deterministic")
	assert.Len(t, fp1, 64, "SHA-256 hex is 64 characters")
}

func TestFingerprintDomainSeparation(t *testing.T) {
	v := map[string]any{"id": "x"}

	assert.NotEqual(t,
		MustFingerprint(DomainPolygon, v),
		MustFingerprint(DomainSource, v),
		"same value in different domains must not collide",
	)
}

func TestFingerprintChangesWithInput(t *testing.T) {
	a := Polygon{Color: "#f00"}
	b := Polygon{Color: "#0f0"}

	assert.NotEqual(t, MustFingerprint(DomainPolygon, a), MustFingerprint(DomainPolygon, b))
}

func TestMustFingerprintPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustFingerprint(DomainMutation, func() {})
	})
}
