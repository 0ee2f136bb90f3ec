package services

import (
	"errors"
	"os"
	"path/filepath"
	"streamspace/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha1("d6:lengthi100e4:name1:ae")
const infoDigest = "3879BBE825B276E22A28D63835105E231CE5880A"

func TestExtractID(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
	}{
		{
			name:       "info only",
			descriptor: "d4:infod6:lengthi100e4:name1:aee",
		},
		{
			name:       "extra top-level keys",
			descriptor: "d8:announce18:udp://tracker:133713:creation datei1700000000e4:infod6:lengthi100e4:name1:aee",
		},
		{
			name:       "top-level keys after info",
			descriptor: "d4:infod6:lengthi100e4:name1:ae7:comment5:helloe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ExtractID([]byte(tt.descriptor))
			require.NoError(t, err)
			assert.Equal(t, infoDigest, id)
		})
	}
}

func TestExtractIDCanonicalizesInfo(t *testing.T) {
	// keys out of order re-encode sorted
	id, err := ExtractID([]byte("d4:infod4:name1:a6:lengthi100eee"))
	require.NoError(t, err)
	assert.Equal(t, infoDigest, id)
}

func TestExtractIDCanonicalizesNestedDictionaries(t *testing.T) {
	sorted, err := ExtractID([]byte("d4:infod5:filesld6:lengthi5e4:pathl1:xeee4:name1:aee"))
	require.NoError(t, err)

	// outer, info and per-file dictionaries all unsorted
	unsorted, err := ExtractID([]byte("d4:infod4:name1:a5:filesld4:pathl1:xe6:lengthi5eeee8:announce1:ue"))
	require.NoError(t, err)

	assert.Equal(t, sorted, unsorted)
}

func TestExtractIDDiffersForDifferentInfo(t *testing.T) {
	id, err := ExtractID([]byte("d4:infod6:lengthi101e4:name1:aee"))
	require.NoError(t, err)
	assert.NotEqual(t, infoDigest, id)
}

func TestExtractIDMalformed(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
	}{
		{name: "empty", descriptor: ""},
		{name: "garbage", descriptor: "not bencode"},
		{name: "list at top level", descriptor: "l4:infoe"},
		{name: "missing info", descriptor: "d4:name1:ae"},
		{name: "info is not a dictionary", descriptor: "d4:info5:helloe"},
		{name: "truncated", descriptor: "d4:infod6:lengthi100e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractID([]byte(tt.descriptor))
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrMalformedDescriptor), "got %v", err)
		})
	}
}

func TestNormalizeID(t *testing.T) {
	id, ok := NormalizeID(" 3879bbe825b276e22a28d63835105e231ce5880a ")
	assert.True(t, ok)
	assert.Equal(t, infoDigest, id)

	_, ok = NormalizeID("XYZ")
	assert.False(t, ok)

	_, ok = NormalizeID("3879BBE825B276E22A28D63835105E231CE5880")
	assert.False(t, ok)
}

func TestDescriptorStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "descriptors")
	store, err := NewDescriptorStore(dir)
	require.NoError(t, err)

	path, err := store.Save(infoDigest, []byte("d4:infod6:lengthi100e4:name1:aee"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, infoDigest+".torrent"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	id, err := ExtractID(data)
	require.NoError(t, err)
	assert.Equal(t, infoDigest, id)

	require.NoError(t, store.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// removing twice is fine
	assert.NoError(t, store.Remove(path))
}

func TestDescriptorStoreRejectsInvalidIDs(t *testing.T) {
	store, err := NewDescriptorStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape", []byte("x"))
	assert.Error(t, err)
}

func TestDescriptorStoreIgnoresForeignPaths(t *testing.T) {
	store, err := NewDescriptorStore(t.TempDir())
	require.NoError(t, err)

	foreign := filepath.Join(t.TempDir(), "keep.torrent")
	require.NoError(t, os.WriteFile(foreign, []byte("x"), 0o644))

	require.NoError(t, store.Remove(foreign))
	_, err = os.Stat(foreign)
	assert.NoError(t, err)
}
