package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintRefreshToken(t *testing.T) {
	fp := FingerprintRefreshToken("token-a")

	assert.Len(t, fp, 64)
	assert.Equal(t, fp, FingerprintRefreshToken("token-a"))
	assert.NotEqual(t, fp, FingerprintRefreshToken("token-b"))
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", FingerprintRefreshToken("abc"))

	assert.True(t, fingerprintsEqual(fp, FingerprintRefreshToken("token-a")))
	assert.False(t, fingerprintsEqual(fp, FingerprintRefreshToken("token-b")))
	assert.False(t, fingerprintsEqual(fp, ""))
}
