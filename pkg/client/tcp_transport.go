package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/ipk24chat/client/pkg/protocol"
)

// tcpReadBufSize mirrors the fixed-size recv buffer the reference client
// reads into per call; frames are reassembled across calls regardless of
// how the bytes happen to be chunked by the kernel.
const tcpReadBufSize = 4096

// TCPTransport implements Transport over a connected TCP stream, framing
// messages with the CRLF delimiter described in §4.A.
type TCPTransport struct {
	conn *net.TCPConn
	// file is a dup of the connection's descriptor, kept open for the
	// lifetime of the transport so Fd() can hand the event loop a
	// stable descriptor to poll without racing its own closure.
	file *os.File
	// accum is the instance-lifetime byte accumulator described in
	// §4.C — it MUST survive across Receive calls because a frame can
	// straddle two reads.
	accum []byte
	buf   [tcpReadBufSize]byte

	engine *Engine
}

var ErrPeerClosed = errors.New("peer closed the TCP connection")

// DialTCP connects to host:port and returns a ready transport, or an
// error the caller should treat as ERROR_EXIT (connection failure before
// any protocol traffic).
func DialTCP(host string, port int, engine *Engine) (*TCPTransport, error) {
	ip, err := resolveIPv4(host)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTCP("tcp4", nil, &net.TCPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", host, port, err)
	}
	file, err := conn.File()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dup socket descriptor: %w", err)
	}
	return &TCPTransport{conn: conn, file: file, engine: engine}, nil
}

func (t *TCPTransport) Fd() int {
	return int(t.file.Fd())
}

// Send writes msg's textual form in one call. A BYE transitions the
// engine to END once it has been written; an AUTH sent from START
// transitions to AUTHENTICATE.
func (t *TCPTransport) Send(msg protocol.Message) error {
	frame := msg.EncodeTCP()
	if _, err := io.WriteString(t.conn, frame); err != nil {
		return fmt.Errorf("tcp send: %w", err)
	}

	if msg.Type() == protocol.TypeBye {
		t.engine.state = StateEnd
	}
	if t.engine.state == StateStart {
		t.engine.state = StateAuthenticate
	}
	return nil
}

// Receive reads one chunk from the socket, appends it to the
// reassembly accumulator, and returns every complete CRLF-delimited
// frame it now contains, parsed into Messages. A zero-byte read means
// the peer closed the connection.
func (t *TCPTransport) Receive() ([]protocol.Message, error) {
	n, err := t.conn.Read(t.buf[:])
	if err != nil {
		if err == io.EOF {
			t.engine.state = StateEnd
			return nil, nil
		}
		return nil, fmt.Errorf("tcp recv: %w", err)
	}
	if n == 0 {
		t.engine.state = StateEnd
		return nil, nil
	}

	t.accum = append(t.accum, t.buf[:n]...)

	var messages []protocol.Message
	for {
		idx := bytes.Index(t.accum, []byte("\r\n"))
		if idx < 0 {
			break
		}
		line := string(t.accum[:idx])
		t.accum = t.accum[idx+2:]

		msg, err := protocol.ParseTCP(line)
		if err != nil {
			return messages, fmt.Errorf("malformed TCP frame %q: %w", line, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (t *TCPTransport) Close() error {
	t.file.Close()
	return t.conn.Close()
}
