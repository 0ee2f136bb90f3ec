package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"streamspace/types"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInfoHash = "3879BBE825B276E22A28D63835105E231CE5880A"

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STREAMSPACE_HOME", t.TempDir())

	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")

	require.NoError(t, err)
	assert.Equal(t, "streamspace dev\n", out)
}

func TestHashCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.torrent")
	require.NoError(t, os.WriteFile(path, []byte("d8:announce18:udp://tracker:13374:infod6:lengthi100e4:name1:aee"), 0o644))

	out, err := runCLI(t, "hash", path)

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, testInfoHash, lines[0])
	assert.Equal(t, "magnet:?xt=urn:btih:"+testInfoHash, lines[1])
}

func TestHashCommandRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.torrent")
	require.NoError(t, os.WriteFile(path, []byte("not bencode"), 0o644))

	_, err := runCLI(t, "hash", path)

	assert.ErrorIs(t, err, types.ErrMalformedDescriptor)
}

func TestInvalidConfigFails(t *testing.T) {
	_, err := runCLI(t, "--storage.driver", "floppy", "version")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "floppy")
}

func TestWatchRejectsInvalidHash(t *testing.T) {
	_, err := runCLI(t, "watch", "nope")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid hash")
}

func TestFollowProgressUntilComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(types.NewProgressMessage(types.ProgressEvent{JobID: testInfoHash, Percent: 40, BytesDown: 2048}))
		_ = conn.WriteJSON(types.NewProgressMessage(types.ProgressEvent{JobID: testInfoHash, Percent: 100, BytesDown: 4096, Complete: true}))
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var out bytes.Buffer
	require.NoError(t, followProgress(conn, &out, testInfoHash))
	assert.Contains(t, out.String(), testInfoHash+" complete (4.0 KB)")
}

func TestFollowProgressNormalClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.NoError(t, followProgress(conn, &bytes.Buffer{}, testInfoHash))
}
