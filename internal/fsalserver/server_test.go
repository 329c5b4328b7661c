package fsalserver_test

import (
	"bufio"
	"context"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Othernet-Project/fsal/internal/fsalserver"
	"github.com/Othernet-Project/fsal/internal/indexer"
	"github.com/Othernet-Project/fsal/internal/scheduler"
	"github.com/Othernet-Project/fsal/internal/store"
	"github.com/Othernet-Project/fsal/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer wires a real store + scheduler + indexer into a Server
// listening on a temp Unix socket, registers a t.Cleanup that shuts
// everything down in order, and returns the socket path and the base path.
func startTestServer(t *testing.T) (sockPath string, base string) {
	t.Helper()

	base = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("hello world"), 0o644))

	dbPath := filepath.Join(t.TempDir(), "index.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)

	logger := log.New(os.Stderr, "", 0)
	sched := scheduler.New(4, logger)

	ix, err := indexer.New([]indexer.BaseConfig{{Path: base, BundlesDir: "bundles"}}, nil, st, sched, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ix.Start(ctx))

	sockPath = filepath.Join(t.TempDir(), "fsal.sock")
	srv := fsalserver.New(sockPath, ix, logger)

	serveCtx, serveCancel := context.WithCancel(context.Background())
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		_ = srv.Serve(serveCtx)
	}()

	t.Cleanup(func() {
		serveCancel()
		<-serveDone
		cancel()
		_ = ix.Stop()
		sched.Stop()
		_ = st.Close()
	})

	waitForSocket(t, sockPath)
	return sockPath, base
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server never started listening on %s", path)
}

// roundTrip dials the socket, writes one NUL-terminated request, and reads
// back one NUL-terminated response.
func roundTrip(t *testing.T, sockPath, body string) string {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, []byte(body)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw, err := wire.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	return string(raw)
}

func TestListDirOverSocket(t *testing.T) {
	sockPath, _ := startTestServer(t)

	resp := roundTrip(t, sockPath, `<request><command><type>list_dir</type><params><path>.</path></params></command></request>`)

	assert.True(t, strings.Contains(resp, "<success>true</success>"))
	assert.True(t, strings.Contains(resp, "<files>"))
	assert.True(t, strings.Contains(resp, "<rel-path>a.txt</rel-path>"))
}

func TestExistsOverSocket(t *testing.T) {
	sockPath, _ := startTestServer(t)

	resp := roundTrip(t, sockPath, `<request><command><type>exists</type><params><path>a.txt</path></params></command></request>`)
	assert.True(t, strings.Contains(resp, "<exists>true</exists>"))

	resp = roundTrip(t, sockPath, `<request><command><type>exists</type><params><path>missing.txt</path></params></command></request>`)
	assert.True(t, strings.Contains(resp, "<exists>false</exists>"))
}

func TestGetFSOOverSocket(t *testing.T) {
	sockPath, _ := startTestServer(t)

	resp := roundTrip(t, sockPath, `<request><command><type>get_fso</type><params><path>a.txt</path></params></command></request>`)
	assert.True(t, strings.Contains(resp, "<success>true</success>"))
	assert.True(t, strings.Contains(resp, "<file>"))
	assert.True(t, strings.Contains(resp, "<size>11</size>"))
}

func TestGetFSOMissingPathReturnsFailure(t *testing.T) {
	sockPath, _ := startTestServer(t)

	resp := roundTrip(t, sockPath, `<request><command><type>get_fso</type><params><path>nope.txt</path></params></command></request>`)
	assert.True(t, strings.Contains(resp, "<success>false</success>"))
	assert.True(t, strings.Contains(resp, "<error>"))
}

func TestRemoveOverSocket(t *testing.T) {
	sockPath, base := startTestServer(t)

	resp := roundTrip(t, sockPath, `<request><command><type>remove</type><params><path>a.txt</path></params></command></request>`)
	assert.True(t, strings.Contains(resp, "<success>true</success>"))

	_, err := os.Stat(filepath.Join(base, "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnknownCommandClosesConnectionWithoutResponse(t *testing.T) {
	sockPath, _ := startTestServer(t)

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, []byte(`<request><command><type>nonexistent</type><params/></command></request>`)))

	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 16)
	_, readErr := conn.Read(buf)
	assert.Error(t, readErr) // connection closed, no response written
}

func TestListBasePathsOverSocket(t *testing.T) {
	sockPath, base := startTestServer(t)

	resp := roundTrip(t, sockPath, `<request><command><type>list_base_paths</type><params/></command></request>`)
	assert.True(t, strings.Contains(resp, "<success>true</success>"))
	assert.True(t, strings.Contains(resp, base))
}
