package pdfextract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTextEmpty(t *testing.T) {
	text, err := ExtractText(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractTextNotAPDF(t *testing.T) {
	_, err := ExtractText(strings.NewReader("plain text, not a pdf"))
	assert.ErrorContains(t, err, "open pdf failed")
}
