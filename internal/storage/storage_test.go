package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentObject(t *testing.T) {
	name := DocumentObject("u1", "../../etc/Lista de precios (2026).pdf")
	assert.True(t, strings.HasPrefix(name, "knowledge/u1/"))
	assert.True(t, strings.HasSuffix(name, "-Lista_de_precios__2026_.pdf"))
	assert.NotContains(t, name, "..")
}

func TestTurnAudioObject(t *testing.T) {
	name := TurnAudioObject("s1", ".mp3")
	assert.True(t, strings.HasPrefix(name, "sessions/s1/"))
	assert.True(t, strings.HasSuffix(name, ".mp3"))
	assert.NotEqual(t, name, TurnAudioObject("s1", "mp3"))
}

func TestSanitizeEmpty(t *testing.T) {
	assert.Equal(t, "file", sanitize(""))
	assert.Equal(t, "file", sanitize("/"))
}
