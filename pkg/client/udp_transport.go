package client

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ipk24chat/client/pkg/protocol"
)

const udpReadBufSize = 1500 // comfortably above the 1400-byte content cap plus headers

// UDPTransport implements Transport over a connected-less UDP socket,
// owning the reliability state described in §3/§4.D: the dynamically
// learned response address and the set of already-delivered MessageIDs.
type UDPTransport struct {
	conn *net.UDPConn
	file *os.File

	serverAddr   *net.UDPAddr
	responseAddr *net.UDPAddr // learned from the first AUTH CONFIRM

	timeout            time.Duration
	maxRetransmissions int

	seenIDs map[uint16]struct{}

	engine *Engine
}

// DialUDP opens a UDP socket and resolves the server address, but sends
// nothing yet — the first send-and-confirm call targets serverAddr until
// a CONFIRM teaches the transport the server's dynamic response port.
func DialUDP(host string, port int, timeout time.Duration, maxRetransmissions int, engine *Engine) (*UDPTransport, error) {
	ip, err := resolveIPv4(host)
	if err != nil {
		return nil, err
	}
	serverAddr := &net.UDPAddr{IP: ip, Port: port}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("open UDP socket: %w", err)
	}
	file, err := conn.File()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dup socket descriptor: %w", err)
	}

	return &UDPTransport{
		conn:               conn,
		file:               file,
		serverAddr:         serverAddr,
		responseAddr:       serverAddr,
		timeout:            timeout,
		maxRetransmissions: maxRetransmissions,
		seenIDs:            make(map[uint16]struct{}),
		engine:             engine,
	}, nil
}

func (t *UDPTransport) Fd() int { return int(t.file.Fd()) }

func (t *UDPTransport) Close() error {
	t.file.Close()
	return t.conn.Close()
}

func (t *UDPTransport) targetAddr() *net.UDPAddr {
	if t.engine.state == StateStart {
		return t.serverAddr
	}
	return t.responseAddr
}

// Send implements the send-and-confirm routine from §4.D: send, wait for
// the matching CONFIRM, retransmitting on timeout up to
// maxRetransmissions, while any other inbound datagram observed along
// the way is dispatched immediately rather than deferred.
func (t *UDPTransport) Send(msg protocol.Message) error {
	payload := msg.EncodeUDP()
	retransmissions := 0

	for {
		if _, err := t.conn.WriteToUDP(payload, t.targetAddr()); err != nil {
			return fmt.Errorf("udp send: %w", err)
		}

		for {
			if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
				return fmt.Errorf("udp set read deadline: %w", err)
			}

			buf := make([]byte, udpReadBufSize)
			n, from, err := t.conn.ReadFromUDP(buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					if retransmissions < t.maxRetransmissions {
						retransmissions++
						if t.engine.metrics != nil {
							t.engine.metrics.RecordRetransmission()
						}
						break // retransmit: re-enter outer loop
					}
					// a silent server after exhausting retransmissions
					// ends the session cleanly, not as a client fault.
					t.engine.state = StateEnd
					return nil
				}
				return fmt.Errorf("udp recv: %w", err)
			}
			data := buf[:n]
			if len(data) < 3 {
				continue // too short to be any valid message, ignore
			}

			if protocol.Type(data[0]) == protocol.TypeConfirm {
				refID := uint16(data[1])<<8 | uint16(data[2])
				if refID != msg.ID() {
					continue // stale confirmation, keep waiting
				}
				if t.engine.state == StateStart {
					t.responseAddr = from
					t.engine.state = StateAuthenticate
				}
				if msg.Type() == protocol.TypeBye {
					t.engine.state = StateEnd
				}
				return nil
			}

			// anything else is a fresh inbound message: dedupe, confirm,
			// and dispatch it inline before resuming the wait for M.
			t.handleInbound(data, from)
		}
	}
}

// Receive is invoked by the event loop when poll reports the socket
// readable outside of an in-flight Send. It reads exactly one datagram,
// runs it through duplicate suppression and CONFIRM emission, and
// returns it for dispatch (or nothing, if it was a duplicate or a bare
// CONFIRM).
func (t *UDPTransport) Receive() ([]protocol.Message, error) {
	buf := make([]byte, udpReadBufSize)
	if err := t.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("udp clear read deadline: %w", err)
	}
	n, from, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, fmt.Errorf("udp recv: %w", err)
	}
	data := buf[:n]
	if len(data) < 3 {
		return nil, nil
	}
	if protocol.Type(data[0]) == protocol.TypeConfirm {
		return nil, nil // stray confirmation outside a send, ignore
	}
	return t.decodeDedupeConfirm(data, from)
}

// handleInbound is the inline variant used from within Send: it decodes,
// dedupes, confirms, and immediately dispatches to the engine rather
// than returning the message for the caller to enqueue.
func (t *UDPTransport) handleInbound(data []byte, from *net.UDPAddr) {
	messages, err := t.decodeDedupeConfirm(data, from)
	if err != nil {
		t.engine.errMsg = err.Error()
		t.engine.state = StateError
		return
	}
	for _, msg := range messages {
		t.engine.DispatchInbound(msg)
	}
}

// decodeDedupeConfirm implements §4.D's duplicate-suppression rule:
// every non-CONFIRM datagram gets a CONFIRM regardless of duplicate
// status, but only a first-seen MessageID is returned for dispatch.
func (t *UDPTransport) decodeDedupeConfirm(data []byte, from *net.UDPAddr) ([]protocol.Message, error) {
	id := uint16(data[1])<<8 | uint16(data[2])

	_, err := t.conn.WriteToUDP(protocol.Confirm{RefID: id}.EncodeUDP(), from)
	if err != nil {
		return nil, fmt.Errorf("udp confirm: %w", err)
	}
	if t.engine.metrics != nil {
		t.engine.metrics.RecordConfirmationSent()
	}

	if _, seen := t.seenIDs[id]; seen {
		if t.engine.metrics != nil {
			t.engine.metrics.RecordDuplicateDropped()
		}
		return nil, nil
	}
	t.seenIDs[id] = struct{}{}

	msg, err := protocol.DecodeUDP(data)
	if err != nil {
		return nil, fmt.Errorf("malformed UDP datagram: %w", err)
	}
	return []protocol.Message{msg}, nil
}
