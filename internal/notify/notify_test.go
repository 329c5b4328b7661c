package notify_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/Othernet-Project/fsal/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerDispatchesFileComplete(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ondd.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("<notification event=\"file_complete\"><path>/incoming/a.zip</path></notification>\x00"))
		_, _ = conn.Write([]byte("<notification event=\"unknown_thing\"><path>/ignored</path></notification>\x00"))
		time.Sleep(50 * time.Millisecond)
	}()

	received := make(chan notify.FileComplete, 4)
	l := notify.New(sockPath, func(fc notify.FileComplete) {
		received <- fc
	}, 50*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go l.Run(ctx)

	select {
	case fc := <-received:
		assert.Equal(t, "/incoming/a.zip", fc.Path)
	case <-time.After(time.Second):
		t.Fatal("did not receive file_complete notification")
	}
}

func TestListenerRetriesWhenSocketAbsent(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "missing.sock")
	l := notify.New(sockPath, func(notify.FileComplete) {}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
