//go:build unix || linux || darwin

package client

import (
	"bufio"
	"io"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Loop is the single-threaded, poll-based event loop described in §4.E/§5.
// It owns no protocol knowledge of its own — every decision about what a
// line or a frame means is delegated to the InputHandler and the Engine.
type Loop struct {
	engine *Engine
	input  *InputHandler

	stdin   *bufio.Reader
	stdinFd int

	transport Transport

	interrupted *atomic.Bool
	stdinOpen   bool
}

// NewLoop wires a loop around an already-connected transport. stdin and
// stdinFd must refer to the same descriptor — stdin for buffered line
// reads, stdinFd for the poll set.
func NewLoop(engine *Engine, input *InputHandler, transport Transport, stdin io.Reader, stdinFd int, interrupted *atomic.Bool) *Loop {
	return &Loop{
		engine:      engine,
		input:       input,
		stdin:       bufio.NewReader(stdin),
		stdinFd:     stdinFd,
		transport:   transport,
		interrupted: interrupted,
		stdinOpen:   true,
	}
}

// Run drives the loop to completion, following the ordering in §4.E:
// poll, service whichever of stdin/socket is readable, drain the
// outbound queue, then check exit conditions.
func (l *Loop) Run() {
	for l.shouldContinue() {
		fds := l.pollSet()
		_, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.engine.errMsg = err.Error()
			l.engine.state = StateError
			break
		}

		if l.stdinOpen && fds[0].Revents&unix.POLLIN != 0 {
			l.handleStdin()
		}
		if fds[len(fds)-1].Revents&unix.POLLIN != 0 {
			l.handleSocket()
		}

		l.engine.DrainOutbound()
	}

	l.engine.PrepareShutdown(l.interrupted.Load(), l.input.nextID)
}

func (l *Loop) shouldContinue() bool {
	switch l.engine.state {
	case StateError, StateErrorExit, StateEnd:
		return false
	}
	return !l.engine.errReceived && !l.interrupted.Load()
}

func (l *Loop) pollSet() []unix.PollFd {
	fds := make([]unix.PollFd, 0, 2)
	if l.stdinOpen {
		fds = append(fds, unix.PollFd{Fd: int32(l.stdinFd), Events: unix.POLLIN})
	}
	fds = append(fds, unix.PollFd{Fd: int32(l.transport.Fd()), Events: unix.POLLIN})
	return fds
}

// handleStdin reads one line and feeds it to the InputHandler. EOF on
// stdin removes it from the poll set and behaves as an implicit /exit.
//
// A literal /exit typed in StateStart is special-cased ahead of the
// InputHandler: before any AUTH, there is nothing to flush and no peer
// to notify, so the loop breaks immediately with no BYE and no queue
// admissibility check. EOF reached in StateStart with nothing queued ends
// the session the same way; past StateStart, EOF enqueues a BYE instead.
func (l *Loop) handleStdin() {
	line, err := l.stdin.ReadString('\n')
	line = trimLineEnding(line)

	if line == "/exit" && l.engine.State() == StateStart {
		l.stdinOpen = false
		l.engine.state = StateEnd
		return
	}

	if line != "" {
		if msg := l.input.Handle(line); msg != nil {
			l.engine.SetDisplayName(l.input.DisplayName())
			l.engine.Enqueue(msg)
		}
	}

	if err == io.EOF {
		l.stdinOpen = false
		if l.engine.State() == StateStart && len(l.engine.outbound) == 0 {
			l.engine.state = StateEnd
		} else if exitMsg := l.input.Handle("/exit"); exitMsg != nil {
			l.engine.SetDisplayName(l.input.DisplayName())
			l.engine.Enqueue(exitMsg)
		}
	}
}

func (l *Loop) handleSocket() {
	messages, err := l.transport.Receive()
	if err != nil {
		l.engine.errMsg = err.Error()
		l.engine.state = StateError
		return
	}
	for _, msg := range messages {
		l.engine.DispatchInbound(msg)
	}
}

// trimLineEnding strips the trailing newline (and an optional preceding
// carriage return) ReadString leaves on a line it successfully read.
func trimLineEnding(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
