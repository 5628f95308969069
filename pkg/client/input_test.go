package client

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ipk24chat/client/pkg/protocol"
)

func TestHandleBlankLineProducesNothing(t *testing.T) {
	h := NewInputHandler(&bytes.Buffer{}, &bytes.Buffer{})
	if msg := h.Handle(""); msg != nil {
		t.Fatalf("expected nil for blank line, got %+v", msg)
	}
}

func TestHandlePlainLineProducesMsgWithMonotonicIDs(t *testing.T) {
	h := NewInputHandler(&bytes.Buffer{}, &bytes.Buffer{})
	h.displayName = "alice"

	first := h.Handle("hello there")
	msg1, ok := first.(protocol.Msg)
	if !ok {
		t.Fatalf("expected Msg, got %T", first)
	}
	if msg1.DisplayName != "alice" || msg1.Content != "hello there" {
		t.Fatalf("unexpected message: %+v", msg1)
	}

	second := h.Handle("another")
	msg2 := second.(protocol.Msg)
	if msg2.MessageID <= msg1.MessageID {
		t.Fatalf("expected strictly increasing MessageIDs, got %d then %d", msg1.MessageID, msg2.MessageID)
	}
}

func TestHandleMessageContentTooLongIsRejected(t *testing.T) {
	stderr := &bytes.Buffer{}
	h := NewInputHandler(&bytes.Buffer{}, stderr)
	if msg := h.Handle(strings.Repeat("a", 1401)); msg != nil {
		t.Fatalf("expected nil for over-length content, got %+v", msg)
	}
	if !strings.Contains(stderr.String(), "ERR:") {
		t.Fatalf("expected an ERR diagnostic, got %q", stderr.String())
	}
}

func TestHandleAuthCommandSetsDisplayNameAndProducesAuth(t *testing.T) {
	h := NewInputHandler(&bytes.Buffer{}, &bytes.Buffer{})
	msg := h.Handle("/auth bob secret123 Bobby")
	auth, ok := msg.(protocol.Auth)
	if !ok {
		t.Fatalf("expected Auth, got %T", msg)
	}
	if auth.Username != "bob" || auth.Secret != "secret123" || auth.DisplayName != "Bobby" {
		t.Fatalf("unexpected auth: %+v", auth)
	}
	if h.DisplayName() != "Bobby" {
		t.Fatalf("expected display name to be updated, got %q", h.DisplayName())
	}
}

func TestHandleAuthCommandRejectsInvalidUsername(t *testing.T) {
	stderr := &bytes.Buffer{}
	h := NewInputHandler(&bytes.Buffer{}, stderr)
	if msg := h.Handle("/auth bad!name secret Bobby"); msg != nil {
		t.Fatalf("expected nil for invalid username, got %+v", msg)
	}
	if !strings.Contains(stderr.String(), "username") {
		t.Fatalf("expected a username diagnostic, got %q", stderr.String())
	}
}

func TestHandleAuthCommandWrongArgCount(t *testing.T) {
	stderr := &bytes.Buffer{}
	h := NewInputHandler(&bytes.Buffer{}, stderr)
	if msg := h.Handle("/auth onlyone"); msg != nil {
		t.Fatalf("expected nil for wrong arg count, got %+v", msg)
	}
	if !strings.Contains(stderr.String(), "unknown or malformed command") {
		t.Fatalf("expected malformed-command diagnostic, got %q", stderr.String())
	}
}

func TestHandleJoinCommandProducesJoinWithCurrentDisplayName(t *testing.T) {
	h := NewInputHandler(&bytes.Buffer{}, &bytes.Buffer{})
	h.displayName = "alice"
	msg := h.Handle("/join general")
	join, ok := msg.(protocol.Join)
	if !ok {
		t.Fatalf("expected Join, got %T", msg)
	}
	if join.ChannelID != "general" || join.DisplayName != "alice" {
		t.Fatalf("unexpected join: %+v", join)
	}
}

func TestHandleRenameUpdatesDisplayNameAndProducesNothing(t *testing.T) {
	h := NewInputHandler(&bytes.Buffer{}, &bytes.Buffer{})
	if msg := h.Handle("/rename newname"); msg != nil {
		t.Fatalf("expected nil from /rename, got %+v", msg)
	}
	if h.DisplayName() != "newname" {
		t.Fatalf("expected display name updated to newname, got %q", h.DisplayName())
	}
}

func TestHandleExitProducesBye(t *testing.T) {
	h := NewInputHandler(&bytes.Buffer{}, &bytes.Buffer{})
	msg := h.Handle("/exit")
	if _, ok := msg.(protocol.Bye); !ok {
		t.Fatalf("expected Bye, got %T", msg)
	}
}

func TestHandleHelpPrintsToStdoutAndProducesNothing(t *testing.T) {
	stdout := &bytes.Buffer{}
	h := NewInputHandler(stdout, &bytes.Buffer{})
	if msg := h.Handle("/help"); msg != nil {
		t.Fatalf("expected nil from /help, got %+v", msg)
	}
	if !strings.Contains(stdout.String(), "/auth") {
		t.Fatalf("expected help text to mention /auth, got %q", stdout.String())
	}
}

func TestHandleUnknownCommandIsRejected(t *testing.T) {
	stderr := &bytes.Buffer{}
	h := NewInputHandler(&bytes.Buffer{}, stderr)
	if msg := h.Handle("/bogus"); msg != nil {
		t.Fatalf("expected nil for unknown command, got %+v", msg)
	}
	if !strings.Contains(stderr.String(), "unknown or malformed command") {
		t.Fatalf("expected malformed-command diagnostic, got %q", stderr.String())
	}
}
