// Package notify connects to an external notification source (ONDD) over a
// Unix domain socket and dispatches NUL-framed <notification> XML messages
// to a callback, reconnecting on failure.
package notify

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/Othernet-Project/fsal/internal/fsalerr"
)

// FileComplete signals that a delivered path has finished being written.
// It is the only notification type the listener forwards.
type FileComplete struct {
	Path string
}

// Callback is invoked once per recognized notification.
type Callback func(FileComplete)

type notificationXML struct {
	XMLName xml.Name `xml:"notification"`
	Event   string   `xml:"event,attr"`
	Path    string   `xml:"path"`
}

// Listener connects to socketPath and forwards file_complete notifications
// to a callback, retrying failed connections on a fixed interval.
type Listener struct {
	socketPath string
	callback   Callback
	retryEvery time.Duration
	logger     *log.Logger
	dial       func(ctx context.Context, path string) (net.Conn, error)
}

// New builds a Listener. retryEvery controls how long to wait before
// retrying after a connection failure; 0 selects a 5-second default.
func New(socketPath string, callback Callback, retryEvery time.Duration, logger *log.Logger) *Listener {
	if retryEvery <= 0 {
		retryEvery = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Listener{
		socketPath: socketPath,
		callback:   callback,
		retryEvery: retryEvery,
		logger:     logger,
		dial: func(ctx context.Context, path string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
	}
}

// Run connects and processes notifications until ctx is cancelled,
// reconnecting after every failure. An unreachable notification source
// never terminates the daemon.
func (l *Listener) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := l.dial(ctx, l.socketPath)
		if err != nil {
			l.logger.Printf("notify: %v", ErrUnavailable(l.socketPath, err))
			if !sleepOrDone(ctx, l.retryEvery) {
				return
			}
			continue
		}

		err = l.processStream(ctx, conn)
		conn.Close()
		if err != nil {
			l.logger.Printf("notify: stream error: %v", err)
		}
		if !sleepOrDone(ctx, l.retryEvery) {
			return
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (l *Listener) processStream(ctx context.Context, conn net.Conn) error {
	// Close the connection on cancellation so a blocked read returns.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := reader.ReadString(0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read notification stream: %w", err)
		}
		msg = msg[:len(msg)-1] // drop trailing NUL
		l.handle(msg)
	}
}

func (l *Listener) handle(raw string) {
	var n notificationXML
	if err := xml.Unmarshal([]byte(raw), &n); err != nil {
		l.logger.Printf("notify: malformed notification %q: %v", raw, err)
		return
	}
	if n.XMLName.Local != "notification" {
		l.logger.Printf("notify: unexpected root element in %q", raw)
		return
	}
	switch n.Event {
	case "file_complete":
		l.callback(FileComplete{Path: n.Path})
	default:
		// Unrecognized event types are dropped.
	}
}

// ErrUnavailable wraps a connection failure so "notification source
// unreachable" is distinguishable from a protocol error.
func ErrUnavailable(socketPath string, cause error) error {
	return fsalerr.Wrap(fsalerr.NotificationSourceUnavailable, cause, "connect to notification source at %s", socketPath)
}
