// Package devicesession drives the single-session ASCII dialogue with a
// real (or mock) ATDome controller over a TCP connection: a startup
// handshake that discards the banner up to the first prompt, then a
// serialized request/reply loop, one outstanding command at a time.
package devicesession

import (
	"bytes"
	"context"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/protocol"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/status"
)

const (
	readBufferSize = 1024
	prompt         = '>'
)

var ErrClosed = fmt.Errorf("device session is closed")

// Reply is what the session hands back for one command. Status is
// non-nil only for a GetStatus command that parsed successfully; every
// other command (and a GetStatus whose dump failed to parse) yields a
// nil Status.
type Reply struct {
	Status *status.Status
}

type request struct {
	cmd   protocol.Command
	reply chan result
}

type result struct {
	reply Reply
	err   error
}

// Session owns a single TCP connection to a controller. After the startup
// handshake, all I/O happens on the goroutine started by Dial; Send is
// the only safe way for other
// goroutines to talk to it.
type Session struct {
	conn   net.Conn
	logger log.FieldLogger

	inbox  chan request
	closed chan struct{}
	err    error
}

// Dial connects to addr, performs the startup handshake (discard bytes
// up to the first '>'), and starts the session's request/reply
// goroutine. The returned Session must eventually be Close()d.
func Dial(ctx context.Context, addr string, logger log.FieldLogger) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	s := &Session{
		conn:   conn,
		logger: logger.WithField("component", "devicesession"),
		inbox:  make(chan request),
		closed: make(chan struct{}),
	}

	if _, err := s.readUntilPrompt(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("startup handshake: %w", err)
	}

	go s.run()
	return s, nil
}

// Send enqueues cmd and waits for its reply, the session's goroutine, or
// ctx to finish first.
func (s *Session) Send(ctx context.Context, cmd protocol.Command) (Reply, error) {
	req := request{cmd: cmd, reply: make(chan result, 1)}

	select {
	case s.inbox <- req:
	case <-s.closed:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("enqueue %s: %w", cmd, ctx.Err())
	}

	select {
	case r := <-req.reply:
		return r.reply, r.err
	case <-s.closed:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("await reply to %s: %w", cmd, ctx.Err())
	}
}

// Close stops the session's goroutine and closes the underlying
// connection. Safe to call more than once.
func (s *Session) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
		close(s.closed)
	}
	return s.conn.Close()
}

func (s *Session) run() {
	defer s.conn.Close()

	for {
		select {
		case req := <-s.inbox:
			reply, err := s.exchange(req.cmd)
			req.reply <- result{reply: reply, err: err}
			if err != nil {
				s.logger.WithError(err).Error("device session terminated")
				s.err = err
				close(s.closed)
				return
			}
		case <-s.closed:
			return
		}
	}
}

// exchange writes cmd and blocks for its reply: a GetStatus accumulates
// bytes to the prompt and parses them; anything else just drains to the
// prompt and replies None.
func (s *Session) exchange(cmd protocol.Command) (Reply, error) {
	s.logger.Debugf("writing command: %s", cmd)
	if _, err := s.conn.Write(cmd.Encode()); err != nil {
		return Reply{}, fmt.Errorf("write %s: %w", cmd, err)
	}

	buf, err := s.readUntilPrompt()
	if err != nil {
		return Reply{}, fmt.Errorf("read reply to %s: %w", cmd, err)
	}

	if cmd.Kind != protocol.KindGetStatus {
		return Reply{}, nil
	}

	st, err := protocol.ParseStatusFromBuffer(buf)
	if err != nil {
		s.logger.WithError(err).Warn("failed to parse status reply")
		return Reply{}, nil
	}
	return Reply{Status: &st}, nil
}

// readUntilPrompt reads in readBufferSize chunks until '>' appears in
// the accumulated buffer, returning everything read before the prompt
// byte. A read error (including EOF) before the prompt is returned as
// an error, with no bytes.
func (s *Session) readUntilPrompt() ([]byte, error) {
	var acc bytes.Buffer
	chunk := make([]byte, readBufferSize)

	for {
		n, err := s.conn.Read(chunk)
		if n > 0 {
			acc.Write(chunk[:n])
			if idx := bytes.IndexByte(acc.Bytes(), prompt); idx >= 0 {
				return acc.Bytes()[:idx], nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}
