// Package transport implements the per-connection loop: it decodes inbound
// frames, dispatches them to the coordinator, encodes replies, and drains
// the session mailbox back to the socket.
package transport

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatcore/chatserver/internal/chatsession"
	"github.com/chatcore/chatserver/internal/coordinator"
	"github.com/chatcore/chatserver/internal/logging"
	"github.com/chatcore/chatserver/internal/metrics"
	"github.com/chatcore/chatserver/internal/wire"
)

// Coordinator is the subset of *coordinator.Coordinator the connection loop
// depends on, so tests can substitute a stub.
type Coordinator interface {
	Register(sessionID uint64, nickname string) wire.Message
	ChangeName(sessionID uint64, newName string) wire.Message
	Join(sessionID uint64, roomName string) wire.Message
	Leave(sessionID uint64, roomName string) wire.Message
	Create(roomName string) wire.Message
	List(sessionID uint64, option string) wire.Message
	SendTo(sessionID uint64, roomName, content string) wire.Message
	PrivMsg(sessionID uint64, targetNick, content string) wire.Message
	DropSession(id uint64)
}

var _ Coordinator = (*coordinator.Coordinator)(nil)

// Serve drives one accepted connection until the peer disconnects, the
// socket errors, or shutdownCtx is cancelled. session must already be
// present in the coordinator's Session Directory (via Accept).
func Serve(shutdownCtx context.Context, conn net.Conn, session *chatsession.Session, coord Coordinator) {
	defer conn.Close()

	correlationID := uuid.New().String()
	ctx := logging.WithCorrelationID(logging.WithSession(shutdownCtx, session.ID()), correlationID)
	logging.Info(ctx, "connection accepted", zap.String("remote_addr", conn.RemoteAddr().String()))

	inbound := make(chan wire.Message)
	inboundErr := make(chan error, 1)
	go readLoop(ctx, conn, inbound, inboundErr)

	for {
		select {
		case <-shutdownCtx.Done():
			logging.Info(ctx, "connection loop stopping: server shutdown")
			return

		case err := <-inboundErr:
			if reply, ok := protocolErrorReply(err); ok {
				logging.Warn(ctx, "rejecting malformed request", zap.Error(err))
				metrics.CoordinatorEvents.WithLabelValues("decode", "failed").Inc()
				if werr := wire.WriteFrame(conn, reply); werr != nil {
					logging.Warn(ctx, "write failed", zap.Error(werr))
					coord.DropSession(session.ID())
					return
				}
				continue
			}
			logging.Info(ctx, "connection closed", zap.Error(err))
			coord.DropSession(session.ID())
			return

		case msg := <-inbound:
			reply := dispatch(ctx, session, coord, msg)
			if reply != nil {
				if err := wire.WriteFrame(conn, *reply); err != nil {
					logging.Warn(ctx, "write failed", zap.Error(err))
					coord.DropSession(session.ID())
					return
				}
			}

		case out := <-session.Mailbox():
			if err := wire.WriteFrame(conn, out); err != nil {
				logging.Warn(ctx, "mailbox drain write failed", zap.Error(err))
				coord.DropSession(session.ID())
				return
			}
		}
	}
}

func readLoop(ctx context.Context, conn net.Conn, out chan<- wire.Message, errCh chan<- error) {
	for {
		msg, err := wire.DecodeFrame(conn)
		if err != nil {
			var malformed *wire.MalformedFrameError
			if errors.As(err, &malformed) {
				// Recoverable framing error local to this connection; keep reading.
				logging.Warn(ctx, "skipping malformed frame", zap.Error(err))
				continue
			}
			var unknown *wire.UnknownKindError
			var mismatch *wire.FieldMismatchError
			if errors.As(err, &unknown) || errors.As(err, &mismatch) {
				// Also recoverable: the peer gets a Failed reply from Serve and
				// the connection stays open, so keep reading past it.
				errCh <- err
				continue
			}
			errCh <- err
			return
		}
		out <- msg
	}
}

// protocolErrorReply reports whether err is a protocol-level decode error
// that should produce a Failed reply instead of closing the connection, and
// builds that reply. UnknownKindError has no recoverable Kind to echo back,
// so its arg falls back to "unknown"; FieldMismatchError echoes the Kind
// whose field rule was violated.
func protocolErrorReply(err error) (wire.Message, bool) {
	var unknown *wire.UnknownKindError
	if errors.As(err, &unknown) {
		return wire.MustArgContent(wire.KindFailed, wire.ServerReservedSenderID, "unknown", err.Error()), true
	}
	var mismatch *wire.FieldMismatchError
	if errors.As(err, &mismatch) {
		return wire.MustArgContent(wire.KindFailed, wire.ServerReservedSenderID, mismatch.Kind.String(), err.Error()), true
	}
	return wire.Message{}, false
}

// dispatch classifies an inbound Message by kind and forwards it to the
// coordinator, returning the reply frame to write back (nil for kinds that
// never originate from a client, which are simply ignored).
func dispatch(ctx context.Context, session *chatsession.Session, coord Coordinator, msg wire.Message) *wire.Message {
	var reply wire.Message

	switch msg.Kind {
	case wire.KindRegister:
		reply = coord.Register(session.ID(), *msg.Arg)
	case wire.KindChangeName:
		reply = coord.ChangeName(session.ID(), *msg.Arg)
	case wire.KindJoin:
		reply = coord.Join(session.ID(), *msg.Arg)
	case wire.KindLeave:
		reply = coord.Leave(session.ID(), *msg.Arg)
	case wire.KindCreate:
		reply = coord.Create(*msg.Arg)
	case wire.KindList:
		reply = coord.List(session.ID(), *msg.Arg)
	case wire.KindSendTo:
		reply = coord.SendTo(session.ID(), *msg.Arg, *msg.Content)
	case wire.KindPrivMsg:
		reply = coord.PrivMsg(session.ID(), *msg.Arg, *msg.Content)
	default:
		logging.Warn(ctx, "ignoring client frame with non-request kind", zap.String("kind", msg.Kind.String()))
		return nil
	}

	status := "ok"
	if reply.Kind == wire.KindFailed {
		status = "failed"
	}
	logging.Info(ctx, "dispatched request",
		zap.String("kind", msg.Kind.String()),
		zap.String("session_id_str", strconv.FormatUint(session.ID(), 10)),
		zap.String("status", status),
	)
	return &reply
}
