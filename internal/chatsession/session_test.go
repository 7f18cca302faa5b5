package chatsession

import (
	"testing"
	"time"

	"github.com/chatcore/chatserver/internal/chatroom"
	"github.com/chatcore/chatserver/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_StateMachine(t *testing.T) {
	s := New(1, 8)
	assert.Equal(t, StateUnregistered, s.State())

	s.SetNickname("alice")
	s.SetState(StateRegistered)
	assert.Equal(t, "alice", s.Nickname())
	assert.Equal(t, StateRegistered, s.State())

	s.Close()
	assert.Equal(t, StateDropped, s.State())
}

func TestSession_JoinRejectsDuplicate(t *testing.T) {
	s := New(1, 8)
	room := chatroom.New("general", 8)

	require.NoError(t, s.Join(room))
	err := s.Join(room)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	assert.True(t, s.IsJoined("general"))
}

func TestSession_LeaveRejectsUnjoined(t *testing.T) {
	s := New(1, 8)
	err := s.Leave("general")
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestSession_JoinFanInDeliversBroadcast(t *testing.T) {
	s := New(1, 8)
	room := chatroom.New("general", 8)
	require.NoError(t, s.Join(room))

	msg := wire.MustArgContent(wire.KindRoomMessage, 0, "general", "alice: hi")
	require.NoError(t, room.Publish(msg))

	select {
	case got := <-s.Mailbox():
		assert.True(t, msg.Equal(got))
	case <-time.After(time.Second):
		t.Fatal("message never arrived in mailbox")
	}
}

func TestSession_LeaveStopsFanIn(t *testing.T) {
	s := New(1, 8)
	room := chatroom.New("general", 8)
	require.NoError(t, s.Join(room))
	require.NoError(t, s.Leave("general"))
	assert.False(t, s.IsJoined("general"))

	// Give the fan-in goroutine a moment to observe cancellation, then
	// confirm the room no longer counts this session as a subscriber.
	require.Eventually(t, func() bool {
		return room.Count() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSession_CloseCancelsAllSubscriptions(t *testing.T) {
	s := New(1, 8)
	r1 := chatroom.New("general", 8)
	r2 := chatroom.New("random", 8)
	require.NoError(t, s.Join(r1))
	require.NoError(t, s.Join(r2))

	s.Close()

	require.Eventually(t, func() bool {
		return r1.Count() == 0 && r2.Count() == 0
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, s.JoinedRooms())
}

func TestSession_MailboxOverflowEmitsCoalescedNotice(t *testing.T) {
	s := New(1, 2)

	s.Enqueue(wire.MustArgContent(wire.KindRoomMessage, 0, "general", "1"))
	s.Enqueue(wire.MustArgContent(wire.KindRoomMessage, 0, "general", "2"))
	// Mailbox is now full; this overflows and should drop "1" and "2",
	// queueing a Failed{arg="mailbox"} notice ahead of "3".
	s.Enqueue(wire.MustArgContent(wire.KindRoomMessage, 0, "general", "3"))

	first := <-s.Mailbox()
	assert.Equal(t, wire.KindFailed, first.Kind)
	assert.Equal(t, "mailbox", *first.Arg)

	second := <-s.Mailbox()
	assert.Equal(t, wire.KindRoomMessage, second.Kind)
	assert.Equal(t, "3", *second.Content)
}
