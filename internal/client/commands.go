package client

import (
	"fmt"
	"strings"

	"github.com/chatcore/chatserver/internal/wire"
)

// LocalCommand is a command the client handles itself without talking to
// the server (connection management, help text).
type LocalCommand int

const (
	LocalNone LocalCommand = iota
	LocalConnect
	LocalDisconnect
	LocalQuit
	LocalHelp
)

// ParsedCommand is the result of parsing one line of user input: either a
// wire.Message bound for the server, or a LocalCommand the client itself
// executes, never both.
type ParsedCommand struct {
	Local   LocalCommand
	Target  string // /connect host:port target
	Message *wire.Message
}

// ErrUnknownCommand is returned by ParseCommand for an unrecognized /command.
var ErrUnknownCommand = fmt.Errorf("unknown command")

// ParseCommand maps one line of user input to the action it names. The
// resulting wire.Message (if any) always carries SenderID 0: identity is
// established by the connection itself, not by a client-asserted field.
func ParseCommand(line string) (ParsedCommand, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return ParsedCommand{}, ErrUnknownCommand
	}

	fields := strings.Fields(line)
	cmd := fields[0]
	rest := fields[1:]

	switch cmd {
	case "/help":
		return ParsedCommand{Local: LocalHelp}, nil
	case "/disconnect":
		return ParsedCommand{Local: LocalDisconnect}, nil
	case "/quit":
		return ParsedCommand{Local: LocalQuit}, nil
	case "/connect":
		if len(rest) != 1 {
			return ParsedCommand{}, fmt.Errorf("usage: /connect host:port")
		}
		return ParsedCommand{Local: LocalConnect, Target: rest[0]}, nil
	case "/name":
		return requireOneArg(wire.KindRegister, rest, "/name X")
	case "/changename":
		return requireOneArg(wire.KindChangeName, rest, "/changename X")
	case "/join":
		return requireOneArg(wire.KindJoin, rest, "/join R")
	case "/leave":
		return requireOneArg(wire.KindLeave, rest, "/leave R")
	case "/create":
		return requireOneArg(wire.KindCreate, rest, "/create R")
	case "/list":
		if len(rest) != 1 || !validListOption(rest[0]) {
			return ParsedCommand{}, fmt.Errorf("usage: /list {users|rooms|allrooms}")
		}
		return requireOneArg(wire.KindList, rest, "")
	case "/sendto":
		return requireArgAndBody(wire.KindSendTo, rest, "/sendto R msg...")
	case "/privmsg":
		return requireArgAndBody(wire.KindPrivMsg, rest, "/privmsg U msg...")
	default:
		return ParsedCommand{}, ErrUnknownCommand
	}
}

func validListOption(opt string) bool {
	switch opt {
	case "users", "rooms", "allrooms":
		return true
	default:
		return false
	}
}

func requireOneArg(kind wire.Kind, rest []string, usage string) (ParsedCommand, error) {
	if len(rest) != 1 {
		return ParsedCommand{}, fmt.Errorf("usage: %s", usage)
	}
	msg := wire.MustArg(kind, 0, rest[0])
	return ParsedCommand{Message: &msg}, nil
}

func requireArgAndBody(kind wire.Kind, rest []string, usage string) (ParsedCommand, error) {
	if len(rest) < 2 {
		return ParsedCommand{}, fmt.Errorf("usage: %s", usage)
	}
	msg := wire.MustArgContent(kind, 0, rest[0], strings.Join(rest[1:], " "))
	return ParsedCommand{Message: &msg}, nil
}
