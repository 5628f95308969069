package client

import (
	"net"
	"testing"
	"time"

	"github.com/ipk24chat/client/pkg/protocol"
)

func udpLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUDPTransportSendLearnsResponsePort(t *testing.T) {
	server := udpLoopback(t)
	serverPort := server.LocalAddr().(*net.UDPAddr).Port

	engine := &Engine{state: StateStart}
	tr, err := DialUDP("127.0.0.1", serverPort, 200*time.Millisecond, 3, engine)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer tr.Close()

	done := make(chan error, 1)
	go func() { done <- tr.Send(protocol.Auth{MessageID: 0, Username: "u", Secret: "s", DisplayName: "d"}) }()

	buf := make([]byte, 1500)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if protocol.Type(buf[0]) != protocol.TypeAuth {
		t.Fatalf("expected AUTH datagram, got type 0x%02X", buf[0])
	}

	// Respond from a distinct ephemeral socket to exercise dynamic port
	// learning: the transport must redirect subsequent traffic here.
	responder, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen responder: %v", err)
	}
	defer responder.Close()

	confirm := protocol.Confirm{RefID: 0}.EncodeUDP()
	if _, err := responder.WriteToUDP(confirm, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: tr.conn.LocalAddr().(*net.UDPAddr).Port}); err != nil {
		t.Fatalf("responder write confirm: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if tr.responseAddr.Port != responder.LocalAddr().(*net.UDPAddr).Port {
		t.Fatalf("expected responseAddr to be learned as %d, got %d",
			responder.LocalAddr().(*net.UDPAddr).Port, tr.responseAddr.Port)
	}
	if engine.state != StateAuthenticate {
		t.Fatalf("expected state AUTHENTICATE after first CONFIRM, got %s", engine.state)
	}
}

func TestUDPTransportSendRetransmitsOnTimeout(t *testing.T) {
	server := udpLoopback(t)
	serverPort := server.LocalAddr().(*net.UDPAddr).Port

	engine := &Engine{state: StateStart}
	tr, err := DialUDP("127.0.0.1", serverPort, 20*time.Millisecond, 2, engine)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer tr.Close()

	// Server never responds: expect (maxRetransmissions + 1) copies of
	// the same datagram before Send gives up and ends the session.
	received := make(chan int, 1)
	go func() {
		count := 0
		buf := make([]byte, 1500)
		server.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			server.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			if _, _, err := server.ReadFromUDP(buf); err != nil {
				break
			}
			count++
		}
		received <- count
	}()

	if err := tr.Send(protocol.Auth{MessageID: 0, Username: "u", Secret: "s", DisplayName: "d"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if engine.state != StateEnd {
		t.Fatalf("expected state END after exhausting retransmissions, got %s", engine.state)
	}

	count := <-received
	if count != 3 {
		t.Fatalf("expected 3 copies (1 + 2 retransmissions), got %d", count)
	}
}

func TestUDPTransportDecodeDedupeConfirmSuppressesDuplicates(t *testing.T) {
	server := udpLoopback(t)
	serverPort := server.LocalAddr().(*net.UDPAddr).Port

	engine := &Engine{state: StateOpen}
	tr, err := DialUDP("127.0.0.1", serverPort, 200*time.Millisecond, 3, engine)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer tr.Close()

	msg := protocol.Msg{MessageID: 5, DisplayName: "bob", Content: "hi"}
	payload := msg.EncodeUDP()
	from := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: serverPort}

	first, err := tr.decodeDedupeConfirm(payload, from)
	if err != nil {
		t.Fatalf("first decodeDedupeConfirm: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected first delivery to return 1 message, got %d", len(first))
	}

	second, err := tr.decodeDedupeConfirm(payload, from)
	if err != nil {
		t.Fatalf("second decodeDedupeConfirm: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected duplicate delivery to return 0 messages, got %d", len(second))
	}
}
