package client

import (
	"fmt"
	"io"
	"log"

	"github.com/ipk24chat/client/pkg/protocol"
)

// ClientState is one of the FSM states the engine moves through over the
// lifetime of a session.
type ClientState int

const (
	StateStart ClientState = iota
	StateAuthenticate
	StateOpen
	StateEnd
	StateError
	StateErrorExit
)

func (s ClientState) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateAuthenticate:
		return "AUTHENTICATE"
	case StateOpen:
		return "OPEN"
	case StateEnd:
		return "END"
	case StateError:
		return "ERROR"
	case StateErrorExit:
		return "ERROR_EXIT"
	default:
		return "UNKNOWN"
	}
}

// Engine owns the FSM state, the outbound queue and the transport, and
// implements the admissibility and dispatch rules that decide whether a
// queued message may be sent and what an inbound message does to the
// session. It has no notion of poll or stdin — that belongs to the event
// loop, which drives it through Enqueue, DrainOutbound, DispatchInbound
// and, on exit, PrepareShutdown.
type Engine struct {
	state         ClientState
	authenticated bool
	waitingReply  bool
	errReceived   bool
	errMsg        string
	displayName   string

	outbound []protocol.Message

	transport Transport
	udpMode   bool
	metrics   *Metrics
	logger    *log.Logger

	stdout io.Writer
	stderr io.Writer
}

// NewEngine constructs an Engine in the START state. The transport is set
// separately via SetTransport, since TCP/UDP transports for the send-and-
// confirm routine in turn need a reference back to the engine — the two
// are wired together after both exist.
func NewEngine(metrics *Metrics, logger *log.Logger, stdout, stderr io.Writer) *Engine {
	return &Engine{
		state:   StateStart,
		metrics: metrics,
		logger:  logger,
		stdout:  stdout,
		stderr:  stderr,
	}
}

func (e *Engine) SetTransport(t Transport, udpMode bool) {
	e.transport = t
	e.udpMode = udpMode
}

func (e *Engine) State() ClientState   { return e.state }
func (e *Engine) ErrReceived() bool    { return e.errReceived }
func (e *Engine) DisplayName() string  { return e.displayName }
func (e *Engine) SetDisplayName(n string) { e.displayName = n }

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Enqueue appends a freshly produced outbound message to the queue. It
// does not send anything — DrainOutbound applies admissibility on the
// next loop iteration.
func (e *Engine) Enqueue(msg protocol.Message) {
	e.outbound = append(e.outbound, msg)
}

// DrainOutbound applies the admissibility table in order, sending every
// message it can until the queue is empty or a waiting_on_reply message
// blocks further progress.
func (e *Engine) DrainOutbound() {
	for len(e.outbound) > 0 {
		if e.waitingReply {
			return
		}

		msg := e.outbound[0]
		if msg == nil {
			e.outbound = e.outbound[1:]
			continue
		}

		if msg.Type() != protocol.TypeAuth && msg.Type() != protocol.TypeBye && !e.authenticated {
			fmt.Fprintln(e.stderr, "ERR: You need to authenticate first")
			e.outbound = e.outbound[1:]
			continue
		}
		if (msg.Type() == protocol.TypeMsg || msg.Type() == protocol.TypeJoin) && e.state != StateOpen {
			fmt.Fprintln(e.stderr, "ERR: cannot send this message outside the open state")
			e.outbound = e.outbound[1:]
			continue
		}
		if msg.Type() == protocol.TypeAuth && e.authenticated {
			fmt.Fprintln(e.stderr, "ERR: already authenticated")
			e.outbound = e.outbound[1:]
			continue
		}

		if err := e.transport.Send(msg); err != nil {
			e.logf("send failed: %v", err)
			e.errMsg = err.Error()
			e.state = StateError
			return
		}
		if e.metrics != nil {
			e.metrics.RecordSent(msg.Type().String())
		}

		if msg.Type() == protocol.TypeAuth || msg.Type() == protocol.TypeJoin {
			e.waitingReply = true
			return
		}
		e.outbound = e.outbound[1:]
	}
}

// DispatchInbound applies the inbound-dispatch rules for one message,
// per §4.E. It is called both from the event loop's inbound-queue drain
// and, for UDP, inline from within the send-and-confirm wait.
func (e *Engine) DispatchInbound(msg protocol.Message) {
	if e.metrics != nil {
		e.metrics.RecordReceived(msg.Type().String())
	}

	switch m := msg.(type) {
	case protocol.Reply:
		e.dispatchReply(m)
	case protocol.Msg:
		fmt.Fprintf(e.stdout, "%s: %s\n", m.DisplayName, m.Content)
	case protocol.Err:
		fmt.Fprintf(e.stderr, "ERR FROM %s: %s\n", m.DisplayName, m.Content)
		e.errReceived = true
	case protocol.Bye:
		e.state = StateEnd
	default:
		e.errMsg = fmt.Sprintf("unexpected inbound message type %s", msg.Type())
		e.state = StateError
	}
}

func (e *Engine) dispatchReply(reply protocol.Reply) {
	if !e.waitingReply || len(e.outbound) == 0 {
		return // unsolicited REPLY, discarded
	}

	head := e.outbound[0]
	if e.udpMode && reply.RefID != head.ID() {
		// a UDP REPLY carries its own ref_id; a mismatch means this
		// reply belongs to some other outstanding exchange and is
		// ignored rather than acted on. TCP REPLYs carry no ref_id in
		// the text grammar, so the check only applies over UDP.
		return
	}

	if reply.OK {
		fmt.Fprintf(e.stderr, "Success: %s\n", reply.Content)
		if head.Type() == protocol.TypeAuth {
			e.authenticated = true
			e.state = StateOpen
		}
	} else {
		fmt.Fprintf(e.stderr, "Failure: %s\n", reply.Content)
	}

	e.outbound = e.outbound[1:]
	e.waitingReply = false
	e.DrainOutbound()
}

// PrepareShutdown implements the exit sequence from §4.E: emit an ERR if
// the local state is ERROR, then emit BYE if ERROR, err_received, or an
// interrupt arrived past START. interrupted is the loop's observation of
// the SIGINT flag.
func (e *Engine) PrepareShutdown(interrupted bool, nextID func() uint16) {
	if e.state == StateError {
		e.transport.Send(protocol.Err{MessageID: nextID(), DisplayName: e.displayName, Content: e.errMsg})
	}
	if e.state == StateError || e.errReceived || (interrupted && e.state != StateStart) {
		e.transport.Send(protocol.Bye{MessageID: nextID()})
	}
}

// ExitCode returns the process exit status per §6: nonzero on any ERROR
// path or a server-sent ERR, zero otherwise.
func (e *Engine) ExitCode() int {
	if e.state == StateError || e.state == StateErrorExit || e.errReceived {
		return 1
	}
	return 0
}
