package services

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"streamspace/types"
	"strings"

	"github.com/anacrolix/torrent/bencode"
)

// InfoKey is the descriptor key whose dictionary defines the job identity
const InfoKey = "info"

var idPattern = regexp.MustCompile(`^[0-9A-F]{40}$`)

// ExtractID computes the canonical job id of a bencoded descriptor: the
// uppercase hex SHA-1 of the canonical re-encoding of its info dictionary.
// Dictionaries are accepted in any key order and re-encoded sorted, so only
// the info dictionary's content matters; other top-level keys and the byte
// layout do not affect the id.
func ExtractID(descriptor []byte) (string, error) {
	var top map[string]bencode.Bytes
	if err := bencode.Unmarshal(descriptor, &top); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrMalformedDescriptor, err)
	}
	if top == nil {
		return "", fmt.Errorf("%w: top level is not a dictionary", types.ErrMalformedDescriptor)
	}

	raw, ok := top[InfoKey]
	if !ok {
		return "", fmt.Errorf("%w: no %s dictionary found", types.ErrMalformedDescriptor, InfoKey)
	}
	if len(raw) == 0 || raw[0] != 'd' {
		return "", fmt.Errorf("%w: %s is not a dictionary", types.ErrMalformedDescriptor, InfoKey)
	}
	info, err := decodeValue(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrMalformedDescriptor, InfoKey, err)
	}

	// Marshal sorts dictionary keys and writes minimal integers and lengths.
	canonical, err := bencode.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("%w: re-encode %s: %v", types.ErrMalformedDescriptor, InfoKey, err)
	}

	sum := sha1.Sum(canonical)
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// decodeValue decodes one bencoded value into generic Go values. Decoding
// dictionaries through map[string]bencode.Bytes keeps the decoder from
// enforcing sorted keys at every nesting level.
func decodeValue(raw bencode.Bytes) (interface{}, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch c := raw[0]; {
	case c == 'd':
		var fields map[string]bencode.Bytes
		if err := bencode.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		dict := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			decoded, err := decodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			dict[k] = decoded
		}
		return dict, nil
	case c == 'l':
		var items []bencode.Bytes
		if err := bencode.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		list := make([]interface{}, 0, len(items))
		for i, v := range items {
			decoded, err := decodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			list = append(list, decoded)
		}
		return list, nil
	case c == 'i':
		var n int64
		if err := bencode.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return n, nil
	case c >= '0' && c <= '9':
		var str string
		if err := bencode.Unmarshal(raw, &str); err != nil {
			return nil, err
		}
		return str, nil
	}
	return nil, fmt.Errorf("unexpected token %q", raw[0])
}

// NormalizeID uppercases a hex job id and checks it is 40 characters long
func NormalizeID(id string) (string, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))
	return id, idPattern.MatchString(id)
}

// DescriptorStore keeps uploaded descriptors so engines can be rebuilt from
// them after a restart.
type DescriptorStore struct {
	dir string
}

// NewDescriptorStore creates the directory if needed
func NewDescriptorStore(dir string) (*DescriptorStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create descriptor directory: %w", err)
	}
	return &DescriptorStore{dir: dir}, nil
}

// Save writes the descriptor as {dir}/{id}.torrent and returns its path
func (d *DescriptorStore) Save(id string, data []byte) (string, error) {
	if _, ok := NormalizeID(id); !ok {
		return "", fmt.Errorf("invalid job id %q", id)
	}
	path := filepath.Join(d.dir, id+".torrent")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write descriptor: %w", err)
	}
	return path, nil
}

// Remove deletes a stored descriptor; a missing file is not an error
func (d *DescriptorStore) Remove(path string) error {
	if path == "" || filepath.Dir(path) != filepath.Clean(d.dir) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove descriptor: %w", err)
	}
	return nil
}
