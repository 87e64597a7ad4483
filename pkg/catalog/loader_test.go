package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/intent-engine/pkg/apperrors"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intent_examples.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseSeedFileValid(t *testing.T) {
	path := writeSeedFile(t, `{
		"ORDER_STATUS.WISMO": ["Where is my order?", "Track my package"],
		"RETURN_EXCHANGE.RETURN_INITIATE": ["I want to return this"]
	}`)

	data, err := parseSeedFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 2)
	assert.Len(t, data["ORDER_STATUS.WISMO"], 2)
}

func TestParseSeedFileRejectsBadIntentCode(t *testing.T) {
	tests := []string{
		`{"order_status.wismo": ["x"]}`,
		`{"ORDER_STATUS": ["x"]}`,
		`{"ORDER_STATUS.WISMO.EXTRA": ["x"]}`,
		`{"ORDER-STATUS.WISMO": ["x"]}`,
	}
	for _, content := range tests {
		path := writeSeedFile(t, content)
		_, err := parseSeedFile(path)
		require.Error(t, err, "content %s should be rejected", content)
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	}
}

func TestParseSeedFileRejectsOversizeExample(t *testing.T) {
	long := strings.Repeat("a", MaxExampleBytes+1)
	path := writeSeedFile(t, `{"ORDER_STATUS.WISMO": ["`+long+`"]}`)

	_, err := parseSeedFile(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestParseSeedFileRejectsMalformedJSON(t *testing.T) {
	path := writeSeedFile(t, `{"ORDER_STATUS.WISMO": ["x"`)
	_, err := parseSeedFile(path)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestParseSeedFileMissingFile(t *testing.T) {
	_, err := parseSeedFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "[]", formatVector(nil))
	assert.Equal(t, "[1,-2,0.5]", formatVector([]float32{1, -2, 0.5}))
}
