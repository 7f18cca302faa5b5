// Package chatsession implements the per-connection Session: its
// registration state machine, its joined-room fan-in tasks, and its
// outbound mailbox.
package chatsession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chatcore/chatserver/internal/chatroom"
	"github.com/chatcore/chatserver/internal/logging"
	"github.com/chatcore/chatserver/internal/metrics"
	"github.com/chatcore/chatserver/internal/wire"
)

// State is a session's position in the registration state machine.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyJoined is returned by Join when the session already holds a
	// subscription to the named room.
	ErrAlreadyJoined = errors.New("chatsession: already part of room")
	// ErrNotJoined is returned by Leave when the session does not hold a
	// subscription to the named room.
	ErrNotJoined = errors.New("chatsession: not part of room")
)

// joinRecord pairs the cancel token for a room subscription with the cancel
// token for the fan-in task reading it, so both stop together on leave.
type joinRecord struct {
	unsubscribe func()
	cancelFanIn context.CancelFunc
}

// Session is a single client connection's server-side state.
type Session struct {
	id uint64

	mu           sync.RWMutex
	nickname     string
	state        State
	joinedRooms  map[string]*joinRecord
	pendingDrops int

	mailbox chan wire.Message
}

// New creates a session in the Unregistered state with the given mailbox
// capacity (CHAT_MAILBOX_CAP).
func New(id uint64, mailboxCap int) *Session {
	return &Session{
		id:          id,
		state:       StateUnregistered,
		joinedRooms: make(map[string]*joinRecord),
		mailbox:     make(chan wire.Message, mailboxCap),
	}
}

// ID returns the session's server-assigned id.
func (s *Session) ID() uint64 { return s.id }

// Nickname returns the session's current nickname, empty before Register.
func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

// SetNickname updates the session's nickname. Uniqueness is the
// coordinator's responsibility; the session only stores the value.
func (s *Session) SetNickname(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nickname = name
}

// State returns the session's current state machine position.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState transitions the session's state.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Mailbox returns the channel the connection loop drains to the socket.
func (s *Session) Mailbox() <-chan wire.Message {
	return s.mailbox
}

// IsJoined reports whether the session currently holds a subscription to
// roomName.
func (s *Session) IsJoined(roomName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.joinedRooms[roomName]
	return ok
}

// JoinedRooms returns the names of every room the session currently
// subscribes to. Order is unspecified.
func (s *Session) JoinedRooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.joinedRooms))
	for name := range s.joinedRooms {
		names = append(names, name)
	}
	return names
}

// Join subscribes the session to room and spawns the fan-in task that
// forwards its broadcasts into the mailbox. Fails with ErrAlreadyJoined if
// the session already holds a subscription to this room name.
func (s *Session) Join(room *chatroom.Room) error {
	s.mu.Lock()
	if _, exists := s.joinedRooms[room.Name()]; exists {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}

	ch, unsubscribe := room.Subscribe(s.id)
	ctx, cancel := context.WithCancel(context.Background())
	s.joinedRooms[room.Name()] = &joinRecord{unsubscribe: unsubscribe, cancelFanIn: cancel}
	s.mu.Unlock()

	go s.fanIn(ctx, room.Name(), ch)
	return nil
}

// Leave cancels the session's subscription to roomName. Fails with
// ErrNotJoined if the session does not hold one.
func (s *Session) Leave(roomName string) error {
	s.mu.Lock()
	rec, ok := s.joinedRooms[roomName]
	if !ok {
		s.mu.Unlock()
		return ErrNotJoined
	}
	delete(s.joinedRooms, roomName)
	s.mu.Unlock()

	rec.cancelFanIn()
	rec.unsubscribe()
	return nil
}

// Close tears down every fan-in task and room subscription and marks the
// session Dropped. Safe to call once, at disconnect.
func (s *Session) Close() {
	s.mu.Lock()
	records := s.joinedRooms
	s.joinedRooms = make(map[string]*joinRecord)
	s.state = StateDropped
	s.mu.Unlock()

	for _, rec := range records {
		rec.cancelFanIn()
		rec.unsubscribe()
	}
}

// fanIn forwards every message the room publishes into the session mailbox
// until ctx is cancelled (Leave/Close) or the room closes the subscription
// channel. It holds no reference back to the session beyond the mailbox
// capability, so cancelling it can never deadlock against room state.
func (s *Session) fanIn(ctx context.Context, roomName string, ch <-chan wire.Message) {
	logCtx := logging.WithSession(logging.WithRoom(context.Background(), roomName), s.id)
	defer logging.Info(logCtx, "fan-in task stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.Enqueue(msg)
		}
	}
}

// Enqueue appends msg to the mailbox. On overflow the two oldest queued
// messages are dropped, then a single Failed{arg="mailbox"} notice counting
// the drops is queued, followed by msg, so the queue never grows past its cap.
func (s *Session) Enqueue(msg wire.Message) {
	select {
	case s.mailbox <- msg:
		return
	default:
	}

	// Free one slot for the notice and one for msg.
	s.mu.Lock()
	for i := 0; i < 2; i++ {
		select {
		case <-s.mailbox:
			s.pendingDrops++
			metrics.MailboxDropped.WithLabelValues("overflow").Inc()
		default:
		}
	}
	count := s.pendingDrops
	s.mu.Unlock()

	notice := wire.MustArgContent(wire.KindFailed, wire.ServerReservedSenderID, "mailbox", fmt.Sprintf("dropped %d messages", count))
	select {
	case s.mailbox <- notice:
		s.mu.Lock()
		s.pendingDrops = 0
		s.mu.Unlock()
	default:
		// A concurrent producer refilled the mailbox first; the next
		// overflow will report the accumulated count.
	}
	select {
	case s.mailbox <- msg:
	default:
		metrics.MailboxDropped.WithLabelValues("overflow").Inc()
	}
}
