// Package coordinator implements the single-owner event loop that
// serializes every mutation of the Room Registry, User Directory, and
// Session Directory. Every other task talks to it by sending a closure
// over a channel and waiting for the result, rather than locking the
// directories directly.
package coordinator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chatcore/chatserver/internal/chatroom"
	"github.com/chatcore/chatserver/internal/chatsession"
	"github.com/chatcore/chatserver/internal/logging"
	"github.com/chatcore/chatserver/internal/metrics"
	"github.com/chatcore/chatserver/internal/wire"
)

// Coordinator owns the Room Registry, User Directory, and Session
// Directory. All fields below are touched only from the goroutine running
// Run; every exported method reaches them by submitting a closure to reqCh
// and blocking on its own private reply channel.
type Coordinator struct {
	registry   *chatroom.Registry
	sessions   map[uint64]*chatsession.Session
	nickToID   map[string]uint64
	idToNick   map[uint64]string
	nextID     uint64
	mailboxCap int

	reqCh chan func()
}

// New constructs a Coordinator. registry must already exist; mailboxCap is
// the per-session outbound queue capacity (CHAT_MAILBOX_CAP) applied to
// every session Accept creates.
func New(registry *chatroom.Registry, mailboxCap int) *Coordinator {
	return &Coordinator{
		registry:   registry,
		sessions:   make(map[uint64]*chatsession.Session),
		nickToID:   make(map[string]uint64),
		idToNick:   make(map[uint64]string),
		mailboxCap: mailboxCap,
		reqCh:      make(chan func(), 64),
	}
}

// Run executes the coordinator's event loop until ctx is cancelled. It is
// the only goroutine that ever reads or writes the directories directly.
func (c *Coordinator) Run(ctx context.Context) {
	logging.Info(ctx, "coordinator loop starting")
	for {
		select {
		case <-ctx.Done():
			c.shutdownSessions()
			logging.Info(ctx, "coordinator loop stopping")
			return
		case job := <-c.reqCh:
			job()
		}
	}
}

// shutdownSessions cancels every session's fan-in tasks on server shutdown.
// No DropSession event is needed per session: the coordinator itself is also
// terminating, so directory bookkeeping is moot. Run only ever calls this
// from its own goroutine, so no locking is required.
func (c *Coordinator) shutdownSessions() {
	for _, session := range c.sessions {
		session.Close()
	}
}

// submit runs fn on the coordinator goroutine and blocks until it returns.
func (c *Coordinator) submit(fn func()) {
	done := make(chan struct{})
	c.reqCh <- func() {
		fn()
		close(done)
	}
	<-done
}

// Accept assigns the next session id, constructs its Session, and inserts
// it into the Session Directory. The caller (acceptor) is responsible for
// spawning the connection loop that drives it.
func (c *Coordinator) Accept() *chatsession.Session {
	var s *chatsession.Session
	c.submit(func() {
		c.nextID++
		s = chatsession.New(c.nextID, c.mailboxCap)
		c.sessions[c.nextID] = s
		metrics.IncSession()
	})
	return s
}

// DropSession tears down a session: cancels its fan-in tasks, removes it
// from the User Directory (if registered) and the Session Directory. No
// reply is required or produced.
func (c *Coordinator) DropSession(id uint64) {
	c.submit(func() {
		session, ok := c.sessions[id]
		if !ok {
			return
		}
		session.Close()
		delete(c.sessions, id)

		if nick, ok := c.idToNick[id]; ok {
			delete(c.idToNick, id)
			delete(c.nickToID, nick)
		}
		metrics.DecSession()
		metrics.CoordinatorEvents.WithLabelValues("drop_session", "ok").Inc()
	})
}

// Register binds nickname to sessionID if the nickname is unused.
func (c *Coordinator) Register(sessionID uint64, nickname string) wire.Message {
	var reply wire.Message
	c.submit(func() {
		if _, taken := c.nickToID[nickname]; taken {
			reply = failedEvent("register", "Username already exists")
			return
		}
		session, ok := c.sessions[sessionID]
		if !ok {
			reply = failedEvent("register", "unknown session")
			return
		}

		c.nickToID[nickname] = sessionID
		c.idToNick[sessionID] = nickname
		session.SetNickname(nickname)
		session.SetState(chatsession.StateRegistered)

		metrics.CoordinatorEvents.WithLabelValues("register", "ok").Inc()
		reply = wire.MustArgContent(wire.KindRegistered, wire.ServerReservedSenderID, strconv.FormatUint(sessionID, 10), nickname)
	})
	return reply
}

// ChangeName renames sessionID's nickname to newName if newName is unused.
// Uniqueness is checked before the old mapping is removed, so a rejected
// rename leaves the directories untouched.
func (c *Coordinator) ChangeName(sessionID uint64, newName string) wire.Message {
	var reply wire.Message
	c.submit(func() {
		oldName, registered := c.idToNick[sessionID]
		if !registered {
			reply = failedEvent("changename", "not registered")
			return
		}
		if _, taken := c.nickToID[newName]; taken {
			reply = failedEvent("changename", "Username already exists")
			return
		}

		delete(c.nickToID, oldName)
		c.nickToID[newName] = sessionID
		c.idToNick[sessionID] = newName
		c.sessions[sessionID].SetNickname(newName)

		metrics.CoordinatorEvents.WithLabelValues("changename", "ok").Inc()
		reply = wire.MustArgContent(wire.KindChangedName, wire.ServerReservedSenderID, newName, oldName)
	})
	return reply
}

// Join subscribes sessionID to roomName, which must already exist.
func (c *Coordinator) Join(sessionID uint64, roomName string) wire.Message {
	var reply wire.Message
	c.submit(func() {
		session, ok := c.sessions[sessionID]
		if !ok {
			reply = failedEvent("join", "unknown session")
			return
		}
		room, ok := c.registry.Lookup(roomName)
		if !ok {
			reply = failedEvent("join", "No such room")
			return
		}
		if err := session.Join(room); err != nil {
			reply = failedEvent("join", "Already part of room")
			return
		}

		metrics.CoordinatorEvents.WithLabelValues("join", "ok").Inc()
		reply = wire.MustArg(wire.KindJoined, wire.ServerReservedSenderID, roomName)
	})
	return reply
}

// Leave unsubscribes sessionID from roomName, which it must currently hold.
func (c *Coordinator) Leave(sessionID uint64, roomName string) wire.Message {
	var reply wire.Message
	c.submit(func() {
		session, ok := c.sessions[sessionID]
		if !ok {
			reply = failedEvent("leave", "unknown session")
			return
		}
		if err := session.Leave(roomName); err != nil {
			reply = failedEvent("leave", "Not part of room")
			return
		}

		metrics.CoordinatorEvents.WithLabelValues("leave", "ok").Inc()
		reply = wire.MustArg(wire.KindLeftRoom, wire.ServerReservedSenderID, roomName)
	})
	return reply
}

// Create inserts a new room named roomName, which must not already exist.
func (c *Coordinator) Create(roomName string) wire.Message {
	var reply wire.Message
	c.submit(func() {
		if _, created := c.registry.Create(roomName); !created {
			reply = failedEvent("create", "Room already exists")
			return
		}

		metrics.CoordinatorEvents.WithLabelValues("create", "ok").Inc()
		reply = wire.MustArg(wire.KindCreatedRoom, wire.ServerReservedSenderID, roomName)
	})
	return reply
}

// List computes a comma-joined listing for the requested option: "users"
// (every registered nickname), "rooms" (rooms sessionID has joined), or
// "allrooms" (every room in the registry).
func (c *Coordinator) List(sessionID uint64, option string) wire.Message {
	var reply wire.Message
	c.submit(func() {
		switch option {
		case "users":
			names := make([]string, 0, len(c.nickToID))
			for nick := range c.nickToID {
				names = append(names, nick)
			}
			metrics.CoordinatorEvents.WithLabelValues("list_users", "ok").Inc()
			reply = wire.MustContent(wire.KindUsers, wire.ServerReservedSenderID, csv(names))
		case "rooms":
			session, ok := c.sessions[sessionID]
			if !ok {
				reply = failedEvent("list", "unknown session")
				return
			}
			metrics.CoordinatorEvents.WithLabelValues("list_rooms", "ok").Inc()
			reply = wire.MustContent(wire.KindUserRooms, wire.ServerReservedSenderID, csv(session.JoinedRooms()))
		case "allrooms":
			metrics.CoordinatorEvents.WithLabelValues("list_allrooms", "ok").Inc()
			reply = wire.MustContent(wire.KindAllRooms, wire.ServerReservedSenderID, csv(c.registry.List()))
		default:
			reply = failedEvent("list", "Invalid option")
		}
	})
	return reply
}

// SendTo composes a RoomMessage from sessionID's current nickname and
// content and publishes it to roomName, which sessionID must currently hold.
func (c *Coordinator) SendTo(sessionID uint64, roomName, content string) wire.Message {
	var reply wire.Message
	c.submit(func() {
		session, ok := c.sessions[sessionID]
		if !ok || !session.IsJoined(roomName) {
			reply = failedEvent("sendto", "Not part of room")
			return
		}
		room, ok := c.registry.Lookup(roomName)
		if !ok {
			reply = failedEvent("sendto", "No such room")
			return
		}

		body := fmt.Sprintf("%s: %s", session.Nickname(), content)
		broadcast := wire.MustArgContent(wire.KindRoomMessage, wire.ServerReservedSenderID, roomName, body)
		_ = room.Publish(broadcast) // ErrNoSubscribers is not an error here; sender is about to receive its own echo

		metrics.CoordinatorEvents.WithLabelValues("sendto", "ok").Inc()
		reply = wire.MustArgContent(wire.KindMessagedRoom, wire.ServerReservedSenderID, roomName, content)
	})
	return reply
}

// PrivMsg delivers content directly to targetNick's mailbox. Fails if the
// target is unregistered or is the sender itself.
func (c *Coordinator) PrivMsg(sessionID uint64, targetNick, content string) wire.Message {
	var reply wire.Message
	c.submit(func() {
		sender, ok := c.sessions[sessionID]
		if !ok {
			reply = failedEvent("privmsg", "unknown session")
			return
		}
		if targetNick == sender.Nickname() {
			reply = failedEvent("privmsg", "Cannot message yourself")
			return
		}
		targetID, ok := c.nickToID[targetNick]
		if !ok {
			reply = failedEvent("privmsg", "No such user")
			return
		}
		target := c.sessions[targetID]

		body := fmt.Sprintf("from %s: %s", sender.Nickname(), content)
		target.Enqueue(wire.MustContent(wire.KindIncomingMsg, wire.ServerReservedSenderID, body))

		metrics.CoordinatorEvents.WithLabelValues("privmsg", "ok").Inc()
		reply = wire.MustArgContent(wire.KindOutgoingMsg, wire.ServerReservedSenderID, targetNick, content)
	})
	return reply
}

func failedEvent(arg, content string) wire.Message {
	metrics.CoordinatorEvents.WithLabelValues(arg, "failed").Inc()
	return wire.MustArgContent(wire.KindFailed, wire.ServerReservedSenderID, arg, content)
}

func csv(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}
