package docx

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractText(t *testing.T) {
	data := buildDocx(t, `<w:p><w:r><w:t>Plan</w:t></w:r><w:r><w:t xml:space="preserve"> Premium</w:t></w:r></w:p>`+
		`<w:p></w:p><w:p><w:r><w:t>Precio: 49 €</w:t></w:r></w:p>`)

	text, err := ExtractText(data)
	require.NoError(t, err)
	assert.Equal(t, "Plan Premium\nPrecio: 49 €", text)
}

func TestExtractTextRejectsOtherFiles(t *testing.T) {
	_, err := ExtractText([]byte("%PDF-1.4 not a zip"))
	assert.ErrorIs(t, err, ErrNotDocx)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("other.txt")
	require.NoError(t, zw.Close())
	_, err = ExtractText(buf.Bytes())
	assert.ErrorIs(t, err, ErrNotDocx)
}
