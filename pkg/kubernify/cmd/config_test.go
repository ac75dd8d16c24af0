package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStringMap_JSONObject(t *testing.T) {
	m, err := decodeStringMap(`{"frontend":"1.2.3","backend":"2.0.0"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"frontend": "1.2.3", "backend": "2.0.0"}, m)
}

func TestDecodeStringMap_YAMLMapping(t *testing.T) {
	m, err := decodeStringMap("frontend: 1.2.3\nbackend: 2.0.0\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"frontend": "1.2.3", "backend": "2.0.0"}, m)
}

func TestDecodeStringMap_FileReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"frontend":"1.2.3"}`), 0o600))

	m, err := decodeStringMap("@" + path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"frontend": "1.2.3"}, m)
}

func TestDecodeStringMap_InvalidInputIsError(t *testing.T) {
	_, err := decodeStringMap(`{"frontend": [1,2]}`)
	require.Error(t, err)
}

func TestDecodeStringMap_EmptyIsEmptyMap(t *testing.T) {
	m, err := decodeStringMap("")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestDecodeCSVOrJSONArray_JSON(t *testing.T) {
	assert.Equal(t, []string{"frontend", "backend"}, decodeCSVOrJSONArray(`["frontend","backend"]`))
}

func TestDecodeCSVOrJSONArray_CSV(t *testing.T) {
	assert.Equal(t, []string{"frontend", "backend"}, decodeCSVOrJSONArray("frontend, backend"))
}

func TestDecodeCSVOrJSONArray_EmptyIsNil(t *testing.T) {
	assert.Nil(t, decodeCSVOrJSONArray(""))
}

func TestSplitCSV_DropsEmptyItems(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV("a,, b ,"))
}

func TestReadFileRef_MissingFileReturnsVerbatim(t *testing.T) {
	assert.Equal(t, "@/no/such/file.json", readFileRef("@/no/such/file.json"))
}
