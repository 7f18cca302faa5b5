// Package wire implements the chat protocol's binary frame codec: a
// length-prefixed, self-delimiting encoding of Message values, with
// per-kind field presence validation applied on both encode and decode.
package wire

import "fmt"

// Kind identifies the type of a Message. The numeric values are part of the
// wire format and must stay stable.
type Kind uint8

const (
	KindRegister Kind = iota
	KindRegistered
	KindJoin
	KindJoined
	KindLeave
	KindLeftRoom
	KindList
	KindChangeName
	KindChangedName
	KindCreate
	KindCreatedRoom
	KindPrivMsg
	KindIncomingMsg
	KindOutgoingMsg
	KindSendTo
	KindMessagedRoom
	KindRoomMessage
	KindUserRooms
	KindAllRooms
	KindUsers
	KindFailed
)

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

var kindNames = map[Kind]string{
	KindRegister:     "Register",
	KindRegistered:   "Registered",
	KindJoin:         "Join",
	KindJoined:       "Joined",
	KindLeave:        "Leave",
	KindLeftRoom:     "LeftRoom",
	KindList:         "List",
	KindChangeName:   "ChangeName",
	KindChangedName:  "ChangedName",
	KindCreate:       "Create",
	KindCreatedRoom:  "CreatedRoom",
	KindPrivMsg:      "PrivMsg",
	KindIncomingMsg:  "IncomingMsg",
	KindOutgoingMsg:  "OutgoingMsg",
	KindSendTo:       "SendTo",
	KindMessagedRoom: "MessagedRoom",
	KindRoomMessage:  "RoomMessage",
	KindUserRooms:    "UserRooms",
	KindAllRooms:     "AllRooms",
	KindUsers:        "Users",
	KindFailed:       "Failed",
}

// fieldRule describes which optional fields a Kind requires or forbids.
type fieldRule struct {
	arg     bool
	content bool
}

// ServerReservedSenderID is reserved for server-originated frames; no
// session is ever assigned this id.
const ServerReservedSenderID uint64 = 0

var fieldRules = map[Kind]fieldRule{
	KindRegister:    {arg: true, content: false},
	KindJoin:        {arg: true, content: false},
	KindLeave:       {arg: true, content: false},
	KindList:        {arg: true, content: false},
	KindChangeName:  {arg: true, content: false},
	KindCreate:      {arg: true, content: false},
	KindJoined:      {arg: true, content: false},
	KindLeftRoom:    {arg: true, content: false},
	KindCreatedRoom: {arg: true, content: false},

	KindSendTo:       {arg: true, content: true},
	KindPrivMsg:      {arg: true, content: true},
	KindRoomMessage:  {arg: true, content: true},
	KindRegistered:   {arg: true, content: true},
	KindFailed:       {arg: true, content: true},
	KindChangedName:  {arg: true, content: true},
	KindMessagedRoom: {arg: true, content: true},
	KindOutgoingMsg:  {arg: true, content: true},

	KindIncomingMsg: {arg: false, content: true},
	KindAllRooms:    {arg: false, content: true},
	KindUserRooms:   {arg: false, content: true},
	KindUsers:       {arg: false, content: true},
}

// Message is the unit of exchange on the wire. Arg and Content are pointers
// so that "absent" and "present but empty string" are distinguishable.
type Message struct {
	Kind     Kind
	SenderID uint64
	Arg      *string
	Content  *string
}

func strPtr(s string) *string { return &s }

// NewMessage builds and validates a Message, returning FieldMismatch if the
// supplied arg/content presence doesn't match Kind's field rule.
func NewMessage(kind Kind, senderID uint64, arg, content *string) (Message, error) {
	m := Message{Kind: kind, SenderID: senderID, Arg: arg, Content: content}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// MustArg builds a Message with only the arg field set.
func MustArg(kind Kind, senderID uint64, arg string) Message {
	m, err := NewMessage(kind, senderID, strPtr(arg), nil)
	if err != nil {
		panic(fmt.Sprintf("wire: MustArg built an invalid message for %s: %v", kind, err))
	}
	return m
}

// MustArgContent builds a Message with both arg and content set.
func MustArgContent(kind Kind, senderID uint64, arg, content string) Message {
	m, err := NewMessage(kind, senderID, strPtr(arg), strPtr(content))
	if err != nil {
		panic(fmt.Sprintf("wire: MustArgContent built an invalid message for %s: %v", kind, err))
	}
	return m
}

// MustContent builds a Message with only the content field set.
func MustContent(kind Kind, senderID uint64, content string) Message {
	m, err := NewMessage(kind, senderID, nil, strPtr(content))
	if err != nil {
		panic(fmt.Sprintf("wire: MustContent built an invalid message for %s: %v", kind, err))
	}
	return m
}

// Validate checks that m's field presence matches its Kind's rule.
func (m Message) Validate() error {
	rule, ok := fieldRules[m.Kind]
	if !ok {
		return &UnknownKindError{Kind: m.Kind}
	}

	hasArg := m.Arg != nil
	hasContent := m.Content != nil

	if hasArg != rule.arg {
		if rule.arg {
			return &FieldMismatchError{Kind: m.Kind, Reason: "arg is required"}
		}
		return &FieldMismatchError{Kind: m.Kind, Reason: "arg is forbidden"}
	}
	if hasContent != rule.content {
		if rule.content {
			return &FieldMismatchError{Kind: m.Kind, Reason: "content is required"}
		}
		return &FieldMismatchError{Kind: m.Kind, Reason: "content is forbidden"}
	}
	return nil
}

// Equal reports whether two Messages carry the same kind, sender and field
// values (used by the codec round-trip property).
func (m Message) Equal(other Message) bool {
	if m.Kind != other.Kind || m.SenderID != other.SenderID {
		return false
	}
	if !strPtrEqual(m.Arg, other.Arg) {
		return false
	}
	return strPtrEqual(m.Content, other.Content)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// UnknownKindError is returned when a frame carries an unrecognized kind tag.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("wire: unknown kind tag %d", uint8(e.Kind))
}

// FieldMismatchError is returned when a Kind's required/forbidden field
// rule is violated.
type FieldMismatchError struct {
	Kind   Kind
	Reason string
}

func (e *FieldMismatchError) Error() string {
	return fmt.Sprintf("wire: field mismatch for %s: %s", e.Kind, e.Reason)
}

// MalformedFrameError is returned when a byte slice isn't a structurally
// valid frame (short header, truncated fields, length overflow, ...).
type MalformedFrameError struct {
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("wire: malformed frame: %s", e.Reason)
}
