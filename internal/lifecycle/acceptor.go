// Package lifecycle binds the chat listener, accepts connections, creates
// sessions through the coordinator, and joins every task on shutdown.
package lifecycle

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chatcore/chatserver/internal/chatroom"
	"github.com/chatcore/chatserver/internal/coordinator"
	"github.com/chatcore/chatserver/internal/logging"
	"github.com/chatcore/chatserver/internal/transport"
)

// DefaultRoomName is created at startup so clients have somewhere to talk
// without first issuing Create.
const DefaultRoomName = "main"

// Server owns the chat TCP listener and the coordinator goroutine backing
// it. Use NewServer then Run.
type Server struct {
	addr       string
	registry   *chatroom.Registry
	coord      *coordinator.Coordinator
	listener   net.Listener
	ready      atomic.Bool
}

// NewServer constructs a Server bound to addr (not yet listening) with a
// fresh Room Registry seeded with the default room.
func NewServer(addr string, roomBacklog, mailboxCap int) *Server {
	registry := chatroom.NewRegistry(roomBacklog)
	registry.Create(DefaultRoomName)

	return &Server{
		addr:     addr,
		registry: registry,
		coord:    coordinator.New(registry, mailboxCap),
	}
}

// Ready reports whether the server is currently bound and accepting.
func (s *Server) Ready() bool { return s.ready.Load() }

// Run binds the listener, starts the coordinator loop, and accepts
// connections until ctx is cancelled. It blocks until every spawned task
// (coordinator loop, accept loop, in-flight connection loops) has joined.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		logging.Error(ctx, "bind failed", zap.Error(err), zap.String("addr", s.addr))
		return err
	}
	s.listener = ln
	defer ln.Close()

	logging.Info(ctx, "chat listener bound", zap.String("addr", ln.Addr().String()))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.coord.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		return s.acceptLoop(groupCtx, group)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		// Unblock the pending Accept() call; the accept loop observes the
		// resulting error and exits cleanly because ctx is already done.
		return ln.Close()
	})

	s.ready.Store(true)
	err = group.Wait()
	s.ready.Store(false)
	if err != nil && ctx.Err() != nil {
		// Shutdown in progress; the listener-close error is expected noise.
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, group *errgroup.Group) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Warn(ctx, "accept failed", zap.Error(err))
			continue
		}

		session := s.coord.Accept()
		group.Go(func() error {
			transport.Serve(ctx, conn, session, s.coord)
			return nil
		})
	}
}

// ShutdownWait converts a number of seconds into the time the admin HTTP
// server is given to shut down gracefully once a termination signal arrives.
// The chat listener does not use it: Run stops as soon as its context is
// cancelled.
func ShutdownWait(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
