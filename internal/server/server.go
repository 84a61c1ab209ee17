// Package server implements the TCP request server: it accepts
// connections, decodes one MessagePack Request at a time, dispatches it to
// the LSM tree, and encodes the Response back. Every request is served
// through the tree's own exclusive lock, so handleConnection goroutines
// never race each other — only one Write/Read/Delete is in flight against
// the engine at a time.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nyasuto/strata/internal/lsm"
	"github.com/nyasuto/strata/internal/protocol"
)

// Server accepts TCP connections and serves the key-value protocol against
// a shared *lsm.Tree.
type Server struct {
	tree *lsm.Tree
	log  *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Server over tree. tree must already be open.
func New(tree *lsm.Tree) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		tree:   tree,
		log:    logrus.WithField("component", "server"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start binds addr and begins accepting connections in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server: already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}

	s.listener = listener
	s.running = true

	s.wg.Add(1)
	go s.acceptConnections()

	s.log.WithField("addr", addr).Info("request server listening")
	return nil
}

// Stop closes the listener and waits for in-flight connections to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	listener := s.listener
	s.mu.Unlock()

	s.cancel()
	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()
	return err
}

// Addr returns the bound listener address, or nil if Start has not been
// called. After Stop it still returns the address the listener was bound to.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.WithError(err).Warn("accept failed")
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	wire := protocol.NewConn(conn)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		req, err := wire.ReadRequest()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.WithError(err).Debug("connection closed")
			}
			return
		}

		resp := s.dispatch(req)
		if err := wire.WriteResponse(resp); err != nil {
			s.log.WithError(err).Warn("failed to write response")
			return
		}
	}
}

// dispatch runs one request against the tree. It never panics on a bad
// request — an unknown kind or an engine error becomes an error Response,
// never a dropped connection.
func (s *Server) dispatch(req protocol.Request) protocol.Response {
	switch req.Kind {
	case protocol.KindRead:
		value, found, err := s.tree.Read(req.Key)
		if err != nil {
			return protocol.Failure(err)
		}
		return protocol.Success(value, found)

	case protocol.KindWrite:
		if err := s.tree.Write(req.Key, req.Value); err != nil {
			return protocol.Failure(err)
		}
		return protocol.Success("", false)

	case protocol.KindDelete:
		if err := s.tree.Delete(req.Key); err != nil {
			return protocol.Failure(err)
		}
		return protocol.Success("", false)

	default:
		return protocol.Failure(fmt.Errorf("server: unknown request kind %q", req.Kind))
	}
}
