// Package fsalserver is the Unix domain socket server and command
// dispatcher: it accepts connections, reads one framed request per
// connection, routes by command type to a handler, and writes the framed
// response for synchronous handlers.
package fsalserver

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/Othernet-Project/fsal/internal/indexer"
	"github.com/Othernet-Project/fsal/internal/wire"
)

// Server accepts connections on a Unix domain socket and dispatches one
// request per connection to the command handler registry.
type Server struct {
	socketPath string
	indexer    *indexer.Indexer
	logger     *log.Logger
	handlers   map[string]commandHandler
}

// New builds a Server bound to socketPath, dispatching into ix.
func New(socketPath string, ix *indexer.Indexer, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		socketPath: socketPath,
		indexer:    ix,
		logger:     logger,
		handlers:   buildHandlers(),
	}
}

// Serve binds the socket and accepts connections until ctx is cancelled,
// then stops accepting, lets in-flight requests finish, and returns.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsalserver: remove stale socket %s: %w", s.socketPath, err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("fsalserver: listen on %s: %w", s.socketPath, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
				s.logger.Printf("fsalserver: accept error: %v", err)
				continue
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	raw, err := wire.ReadFrame(reader)
	if err != nil {
		s.logger.Printf("fsalserver: read frame: %v", err)
		return
	}

	req, err := wire.ParseRequest(raw)
	if err != nil {
		// Malformed XML: close the connection without a response.
		s.logger.Printf("fsalserver: malformed request: %v", err)
		return
	}

	h, ok := s.handlers[req.Type]
	if !ok {
		s.logger.Printf("fsalserver: unknown command type %q", req.Type)
		return
	}

	if h.sync {
		resp := h.fn(ctx, s, req)
		if err := wire.WriteFrame(conn, resp.Bytes()); err != nil {
			s.logger.Printf("fsalserver: write response for %q: %v", req.Type, err)
		}
		return
	}
	h.asyncFn(ctx, s, req)
}
