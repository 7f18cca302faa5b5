package transport

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcore/chatserver/internal/chatsession"
	"github.com/chatcore/chatserver/internal/wire"
)

// writeRawFrame hand-assembles a frame so tests can put bytes on the wire
// that wire.Encode would never produce (an unrecognized kind byte, or a
// known kind missing its required fields).
func writeRawFrame(t *testing.T, conn net.Conn, kind byte, flags byte, senderID uint64) {
	t.Helper()
	body := make([]byte, 10)
	body[0] = kind
	body[1] = flags
	binary.BigEndian.PutUint64(body[2:10], senderID)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	_, err := conn.Write(append(lenBuf[:], body...))
	require.NoError(t, err)
}

// fakeCoordinator lets tests script coordinator replies without a real
// coordinator goroutine behind them.
type fakeCoordinator struct {
	registerReply wire.Message
	dropped       chan uint64
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{dropped: make(chan uint64, 4)}
}

func (f *fakeCoordinator) Register(sessionID uint64, nickname string) wire.Message {
	return wire.MustArgContent(wire.KindRegistered, 0, "1", nickname)
}
func (f *fakeCoordinator) ChangeName(sessionID uint64, newName string) wire.Message {
	return wire.MustArgContent(wire.KindChangedName, 0, newName, "old")
}
func (f *fakeCoordinator) Join(sessionID uint64, roomName string) wire.Message {
	return wire.MustArg(wire.KindJoined, 0, roomName)
}
func (f *fakeCoordinator) Leave(sessionID uint64, roomName string) wire.Message {
	return wire.MustArg(wire.KindLeftRoom, 0, roomName)
}
func (f *fakeCoordinator) Create(roomName string) wire.Message {
	return wire.MustArg(wire.KindCreatedRoom, 0, roomName)
}
func (f *fakeCoordinator) List(sessionID uint64, option string) wire.Message {
	return wire.MustContent(wire.KindUsers, 0, "alice")
}
func (f *fakeCoordinator) SendTo(sessionID uint64, roomName, content string) wire.Message {
	return wire.MustArgContent(wire.KindMessagedRoom, 0, roomName, content)
}
func (f *fakeCoordinator) PrivMsg(sessionID uint64, targetNick, content string) wire.Message {
	return wire.MustArgContent(wire.KindOutgoingMsg, 0, targetNick, content)
}
func (f *fakeCoordinator) DropSession(id uint64) {
	f.dropped <- id
}

func TestServe_DispatchesRequestAndRepliesOverWire(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	session := chatsession.New(1, 8)
	coord := newFakeCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Serve(ctx, serverConn, session, coord)

	require.NoError(t, wire.WriteFrame(clientConn, wire.MustArg(wire.KindRegister, 1, "alice")))

	reply, err := wire.DecodeFrame(clientConn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindRegistered, reply.Kind)
}

func TestServe_PeerCloseDropsSession(t *testing.T) {
	serverConn, clientConn := net.Pipe()

	session := chatsession.New(7, 8)
	coord := newFakeCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Serve(ctx, serverConn, session, coord)

	clientConn.Close()

	select {
	case id := <-coord.dropped:
		assert.Equal(t, uint64(7), id)
	case <-time.After(time.Second):
		t.Fatal("expected DropSession to be called after peer close")
	}
}

func TestServe_MailboxDrainsToSocket(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	session := chatsession.New(3, 8)
	coord := newFakeCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Serve(ctx, serverConn, session, coord)

	push := wire.MustContent(wire.KindIncomingMsg, 0, "from bob: hi")
	session.Enqueue(push)

	got, err := wire.DecodeFrame(clientConn)
	require.NoError(t, err)
	assert.True(t, push.Equal(got))
}

func TestServe_UnknownKindGetsFailedReplyAndStaysOpen(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	session := chatsession.New(11, 8)
	coord := newFakeCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Serve(ctx, serverConn, session, coord)

	writeRawFrame(t, clientConn, 0xFE, 0, 11)

	reply, err := wire.DecodeFrame(clientConn)
	require.NoError(t, err)
	require.Equal(t, wire.KindFailed, reply.Kind)
	assert.Equal(t, "unknown", *reply.Arg)

	require.NoError(t, wire.WriteFrame(clientConn, wire.MustArg(wire.KindRegister, 11, "alice")))
	reply, err = wire.DecodeFrame(clientConn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindRegistered, reply.Kind)

	select {
	case id := <-coord.dropped:
		t.Fatalf("connection should not have been dropped, but DropSession(%d) was called", id)
	default:
	}
}

func TestServe_FieldMismatchGetsFailedReplyAndStaysOpen(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	session := chatsession.New(12, 8)
	coord := newFakeCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Serve(ctx, serverConn, session, coord)

	// KindRegister requires arg; flags=0 omits it.
	writeRawFrame(t, clientConn, byte(wire.KindRegister), 0, 12)

	reply, err := wire.DecodeFrame(clientConn)
	require.NoError(t, err)
	require.Equal(t, wire.KindFailed, reply.Kind)
	assert.Equal(t, "Register", *reply.Arg)

	require.NoError(t, wire.WriteFrame(clientConn, wire.MustArg(wire.KindRegister, 12, "bob")))
	reply, err = wire.DecodeFrame(clientConn)
	require.NoError(t, err)
	assert.Equal(t, wire.KindRegistered, reply.Kind)
}

func TestServe_ShutdownStopsLoop(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	session := chatsession.New(9, 8)
	coord := newFakeCoordinator()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Serve(ctx, serverConn, session, coord)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after shutdown signal")
	}
}
