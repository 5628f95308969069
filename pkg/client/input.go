package client

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ipk24chat/client/pkg/protocol"
)

var (
	usernameChannelPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,20}$`)
	secretPattern          = regexp.MustCompile(`^[A-Za-z0-9-]{1,128}$`)
	displayNamePattern     = regexp.MustCompile(`^[\x21-\x7E]{1,20}$`)
	messageContentPattern  = regexp.MustCompile(`^[\x20-\x7E]{1,1000}[\x20-\x7E]{0,400}$`)
)

const helpText = `
List of commands:
	/help - display this message
	/auth <username> <secret> <display_name> - authenticate
	/join <channelID> - join a channel
	/rename <new_display_name> - change display name
	/exit - exit the application
`

// InputHandler turns one line of stdin into either an outbound message
// with a freshly assigned MessageID, a purely local effect (rename,
// help), or nothing — invalid input prints its own diagnostic and
// produces no message. It owns next_send_id and the current display
// name, both of which survive across calls.
type InputHandler struct {
	nextSendID  uint16
	displayName string
	stdout      io.Writer
	stderr      io.Writer
}

func NewInputHandler(stdout, stderr io.Writer) *InputHandler {
	return &InputHandler{stdout: stdout, stderr: stderr}
}

func (h *InputHandler) DisplayName() string { return h.displayName }

func (h *InputHandler) nextID() uint16 {
	id := h.nextSendID
	h.nextSendID++
	return id
}

// Handle parses one line of stdin input. A nil return means "no
// message, nothing to report" (blank line, /help, /rename).
func (h *InputHandler) Handle(line string) protocol.Message {
	if line == "" {
		return nil
	}

	if strings.HasPrefix(line, "/") {
		return h.handleCommand(line[1:])
	}

	if !messageContentPattern.MatchString(line) {
		fmt.Fprintln(h.stderr, "ERR: message content is not valid")
		return nil
	}
	return protocol.Msg{MessageID: h.nextID(), DisplayName: h.displayName, Content: line}
}

func (h *InputHandler) handleCommand(rest string) protocol.Message {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		fmt.Fprintln(h.stderr, "ERR: unknown or malformed command")
		return nil
	}

	command, args := fields[0], fields[1:]
	switch command {
	case "help":
		fmt.Fprint(h.stdout, helpText)
		return nil

	case "auth":
		if len(args) != 3 {
			fmt.Fprintln(h.stderr, "ERR: unknown or malformed command")
			return nil
		}
		username, secret, display := args[0], args[1], args[2]
		if !usernameChannelPattern.MatchString(username) {
			fmt.Fprintln(h.stderr, "ERR: username is not valid")
			return nil
		}
		if !secretPattern.MatchString(secret) {
			fmt.Fprintln(h.stderr, "ERR: secret is not valid")
			return nil
		}
		if !displayNamePattern.MatchString(display) {
			fmt.Fprintln(h.stderr, "ERR: display name is not valid")
			return nil
		}
		h.displayName = display
		return protocol.Auth{MessageID: h.nextID(), Username: username, Secret: secret, DisplayName: display}

	case "join":
		if len(args) != 1 {
			fmt.Fprintln(h.stderr, "ERR: unknown or malformed command")
			return nil
		}
		channel := args[0]
		if !usernameChannelPattern.MatchString(channel) {
			fmt.Fprintln(h.stderr, "ERR: channel ID is not valid")
			return nil
		}
		return protocol.Join{MessageID: h.nextID(), ChannelID: channel, DisplayName: h.displayName}

	case "rename":
		if len(args) != 1 {
			fmt.Fprintln(h.stderr, "ERR: unknown or malformed command")
			return nil
		}
		display := args[0]
		if !displayNamePattern.MatchString(display) {
			fmt.Fprintln(h.stderr, "ERR: display name is not valid")
			return nil
		}
		h.displayName = display
		return nil

	case "exit":
		if len(args) != 0 {
			fmt.Fprintln(h.stderr, "ERR: unknown or malformed command")
			return nil
		}
		return protocol.Bye{MessageID: h.nextID()}

	default:
		fmt.Fprintln(h.stderr, "ERR: unknown or malformed command")
		return nil
	}
}
