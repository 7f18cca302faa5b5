// Package client interprets decoded server Messages into a local
// notification list and maps user command lines into outbound
// wire.Messages. It never originates a coordinator request on its own
// initiative.
package client

import (
	"sync"

	"github.com/chatcore/chatserver/internal/wire"
)

// Category is the notification bucket a reply or push belongs to.
type Category string

const (
	CategoryNotification Category = "notification"
	CategoryListing      Category = "listing"
	CategoryRoomMessage  Category = "room message"
	CategoryPrivateMsg   Category = "private message"
	CategoryError        Category = "error"
)

// Notification is one line appended to the client's presentation-layer view.
type Notification struct {
	Category Category
	Text     string
}

// Runner holds the client-side view built from the server's decoded
// Messages. It is safe for concurrent use by a reader goroutine (Observe)
// and a UI goroutine (Notifications, CheckOutgoing).
type Runner struct {
	mu            sync.Mutex
	notifications []Notification
	tornDown      bool
	nickname      string
}

// NewRunner creates an empty Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Observe classifies msg and appends the resulting notification. A
// Failed{arg="register"} tears the connection down locally.
func (r *Runner) Observe(msg wire.Message) Notification {
	n := classify(msg)

	r.mu.Lock()
	r.notifications = append(r.notifications, n)
	if msg.Kind == wire.KindFailed && msg.Arg != nil && *msg.Arg == "register" {
		r.tornDown = true
	}
	if msg.Kind == wire.KindRegistered && msg.Content != nil {
		r.nickname = *msg.Content
	}
	if msg.Kind == wire.KindChangedName && msg.Arg != nil {
		r.nickname = *msg.Arg
	}
	r.mu.Unlock()

	return n
}

// Nickname returns the nickname this connection last registered or changed
// to, or "" if it hasn't registered yet.
func (r *Runner) Nickname() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nickname
}

// CheckOutgoing inspects a command about to be sent to the server and
// short-circuits it locally if it would always be rejected server-side.
// Currently covers self-targeted PrivMsg. On a block it records and returns
// the local error notification the caller should display instead of
// writing msg to the socket.
func (r *Runner) CheckOutgoing(msg wire.Message) (Notification, bool) {
	if msg.Kind != wire.KindPrivMsg || msg.Arg == nil {
		return Notification{}, false
	}

	nickname := r.Nickname()
	if nickname == "" || *msg.Arg != nickname {
		return Notification{}, false
	}

	n := Notification{CategoryError, "cannot send a private message to yourself"}
	r.mu.Lock()
	r.notifications = append(r.notifications, n)
	r.mu.Unlock()
	return n, true
}

// TornDown reports whether the runner observed a fatal registration
// failure and the connection should be torn down.
func (r *Runner) TornDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tornDown
}

// Notifications returns a snapshot of every notification observed so far.
func (r *Runner) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

func classify(msg wire.Message) Notification {
	switch msg.Kind {
	case wire.KindRegistered:
		return Notification{CategoryNotification, "registered as " + deref(msg.Content)}
	case wire.KindChangedName:
		return Notification{CategoryNotification, deref(msg.Content) + " is now known as " + deref(msg.Arg)}
	case wire.KindJoined:
		return Notification{CategoryNotification, "joined " + deref(msg.Arg)}
	case wire.KindLeftRoom:
		return Notification{CategoryNotification, "left " + deref(msg.Arg)}
	case wire.KindCreatedRoom:
		return Notification{CategoryNotification, "created " + deref(msg.Arg)}
	case wire.KindUserRooms, wire.KindAllRooms, wire.KindUsers:
		return Notification{CategoryListing, deref(msg.Content)}
	case wire.KindRoomMessage:
		return Notification{CategoryRoomMessage, "[" + deref(msg.Arg) + "] " + deref(msg.Content)}
	case wire.KindIncomingMsg:
		return Notification{CategoryPrivateMsg, deref(msg.Content)}
	case wire.KindOutgoingMsg:
		return Notification{CategoryPrivateMsg, "to " + deref(msg.Arg) + ": " + deref(msg.Content)}
	case wire.KindFailed:
		return Notification{CategoryError, deref(msg.Content)}
	default:
		return Notification{CategoryNotification, msg.Kind.String()}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
