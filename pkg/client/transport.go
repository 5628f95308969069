package client

import (
	"fmt"
	"net"

	"github.com/ipk24chat/client/pkg/protocol"
)

// Transport is the capability set the engine and event loop need from
// either wire, independent of whether the underlying socket is a TCP
// stream or a UDP datagram socket.
type Transport interface {
	// Fd returns the underlying socket file descriptor, for the event
	// loop's poll set.
	Fd() int

	// Send transmits msg. For TCP this is a single write of the textual
	// frame. For UDP this runs the full send-and-confirm routine,
	// including retransmission and any inbound messages observed while
	// waiting for the matching CONFIRM — those are dispatched to the
	// engine immediately, inline with the send, per §4.D.
	Send(msg protocol.Message) error

	// Receive is called once the event loop's poll reports the socket
	// readable outside of an in-flight Send. It returns zero or more
	// decoded messages ready for dispatch (for UDP, already passed
	// through duplicate suppression and CONFIRM emission).
	Receive() ([]protocol.Message, error)

	Close() error
}

// resolveIPv4 resolves host to its first IPv4 address, accepting a literal
// dotted-quad directly. The address family is fixed to IPv4.
func resolveIPv4(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("resolve %s: not an IPv4 address", host)
	}

	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if v4 := addr.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("resolve %s: no IPv4 address found", host)
}
