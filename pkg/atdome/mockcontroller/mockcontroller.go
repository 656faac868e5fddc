// Package mockcontroller implements a standalone TCP server that speaks
// the same ASCII protocol as the real ATDome controller, backed by a
// simple kinematic simulator. It exists so the rest of the bridge (and
// its tests) can run against something that behaves like the real
// device without one on hand.
package mockcontroller

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/config"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/movecode"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/protocol"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/status"
)

const readBufferSize = 1024

// Config tunes the simulator's kinematics and the address it listens
// on. Zero values are not valid; build one from
// config.MockControllerConfig or DefaultConfig.
type Config struct {
	ListenAddr           string
	CyclePeriod          time.Duration
	DeltaAzPerCycle      float32
	MainDoorMoveSpeed    float32
	DropoutDoorMoveSpeed float32
}

// DefaultConfig matches the constants the original controller's
// simulator hardcodes.
func DefaultConfig() Config {
	return Config{
		ListenAddr:           "127.0.0.1:0",
		CyclePeriod:          50 * time.Millisecond,
		DeltaAzPerCycle:      0.12,
		MainDoorMoveSpeed:    5.0,
		DropoutDoorMoveSpeed: 2.5,
	}
}

// FromStoreConfig adapts a persisted config.MockControllerConfig.
func FromStoreConfig(c config.MockControllerConfig) Config {
	return Config{
		ListenAddr:           c.ListenAddr,
		CyclePeriod:          c.CyclePeriod,
		DeltaAzPerCycle:      c.DeltaAzPerCycle,
		MainDoorMoveSpeed:    c.MainDoorMoveSpeed,
		DropoutDoorMoveSpeed: c.DropoutDoorMoveSpeed,
	}
}

type simRequest struct {
	cmd      protocol.Command
	reply    chan status.Status
	hasReply bool
}

// Controller is a listening mock ATDome controller. All simulator state
// is owned by the goroutine Run starts; callers only ever observe it
// through the inbox or Status().
type Controller struct {
	cfg    Config
	logger log.FieldLogger

	inbox    chan simRequest
	snapshot chan chan status.Status

	addr net.Addr
}

// New constructs a Controller. Call Run to start serving.
func New(cfg Config, logger log.FieldLogger) *Controller {
	return &Controller{
		cfg:      cfg,
		logger:   logger.WithField("component", "mockcontroller"),
		inbox:    make(chan simRequest, 100),
		snapshot: make(chan chan status.Status),
	}
}

// Addr returns the address the controller is listening on. Only valid
// after Run has started (it is set before Run's first Accept).
func (c *Controller) Addr() net.Addr {
	return c.addr
}

// Status returns a snapshot of the simulator's current state, requested
// through a snapshot channel that the simulator goroutine itself serves,
// so it never races with that goroutine's own mutations.
func (c *Controller) Status(ctx context.Context) (status.Status, error) {
	reply := make(chan status.Status, 1)
	select {
	case c.snapshot <- reply:
	case <-ctx.Done():
		return status.Status{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return status.Status{}, ctx.Err()
	}
}

// Run binds the listener, starts the simulator goroutine, and serves
// connections one at a time until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.cfg.ListenAddr, err)
	}
	defer ln.Close()
	c.addr = ln.Addr()

	go c.simulate(ctx)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		c.serve(ctx, conn)
	}
}

// serve handles one connection to completion before Run accepts the
// next, matching the controller's "one client at a time" contract.
func (c *Controller) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connLog := c.logger.WithField("remote", conn.RemoteAddr())
	connLog.Info("accepted connection")

	if _, err := conn.Write([]byte(">")); err != nil {
		connLog.WithError(err).Warn("failed to write initial prompt")
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			cmd := protocol.Parse(string(buf[:n]))
			if cmd.Kind == protocol.KindUnknown {
				connLog.Warnf("unknown dome command: %q", string(buf[:n]))
			} else if resp, ok := c.submit(ctx, cmd); ok {
				if resp.Status != nil {
					if _, err := conn.Write([]byte(resp.Status.Render())); err != nil {
						connLog.WithError(err).Warn("failed to write status reply")
						return
					}
				}
			} else {
				connLog.Warn("internal error requesting response from simulator")
				return
			}
			if _, err := conn.Write([]byte(">")); err != nil {
				connLog.WithError(err).Warn("failed to write prompt")
				return
			}
		}
		if err != nil {
			connLog.WithError(err).Debug("connection closed")
			return
		}
	}
}

// cmdReply is the simulator's answer to one submitted command: a status
// snapshot for GetStatus, nothing otherwise.
type cmdReply struct {
	Status *status.Status
}

func (c *Controller) submit(ctx context.Context, cmd protocol.Command) (cmdReply, bool) {
	req := simRequest{cmd: cmd, reply: make(chan status.Status, 1), hasReply: cmd.Kind == protocol.KindGetStatus}

	select {
	case c.inbox <- req:
	case <-ctx.Done():
		return cmdReply{}, false
	}

	select {
	case s := <-req.reply:
		if !req.hasReply {
			return cmdReply{}, true
		}
		return cmdReply{Status: &s}, true
	case <-ctx.Done():
		return cmdReply{}, false
	}
}

// simulate owns the Status and advances it once per cycle, draining at
// most one inbound command first. It never shares Status by reference
// outside of a snapshot copy.
func (c *Controller) simulate(ctx context.Context) {
	s := status.Default()
	s.ScbLinkOK = true
	s.HighSpeed = 6.0
	s.MainDoorEncoderClosed = 118449181478
	s.MainDoorEncoderOpened = 8287616388
	s.DropoutDoorEncoderClosed = 5669776578
	s.DropoutDoorEncoderOpened = 5710996184

	ticker := time.NewTicker(c.cfg.CyclePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case reply := <-c.snapshot:
			reply <- s
			continue
		case <-ticker.C:
			select {
			case req := <-c.inbox:
				c.handleCommand(&s, req)
			default:
			}
			c.advanceKinematics(&s)
		}
	}
}

func (c *Controller) handleCommand(s *status.Status, req simRequest) {
	switch req.cmd.Kind {
	case protocol.KindMoveAz:
		s.LastAzimuthGoto = req.cmd.Az
	case protocol.KindStopMotion:
		if s.LastAzimuthGoto != s.AzPos {
			s.LastAzimuthGoto = s.AzPos
			mc := movecode.ClearIfSet(movecode.Code(s.MoveCode), movecode.AzimuthPositive)
			mc = movecode.ClearIfSet(mc, movecode.AzimuthNegative)
			s.MoveCode = byte(mc)
		}
	}
	// Every other command, including the door commands, accepts and
	// replies None without mutating state.
	req.reply <- *s
}

// advanceKinematics runs one 50 ms step of the azimuth model, exactly
// as the original controller's simulator does it.
func (c *Controller) advanceKinematics(s *status.Status) {
	if !(s.MoveCode == 0 || s.MoveCode == movecode.AzimuthPositive.Bit() || s.MoveCode == movecode.AzimuthNegative.Bit()) {
		return
	}
	if s.AzPos == s.LastAzimuthGoto {
		return
	}

	delta := s.LastAzimuthGoto - s.AzPos
	if abs32(delta) > c.cfg.DeltaAzPerCycle {
		if delta > 0 {
			if s.MoveCode == 0 {
				s.MoveCode = byte(movecode.Set(movecode.Code(s.MoveCode), movecode.AzimuthPositive))
			}
			s.AzPos += c.cfg.DeltaAzPerCycle
		} else {
			if s.MoveCode == 0 {
				s.MoveCode = byte(movecode.Set(movecode.Code(s.MoveCode), movecode.AzimuthNegative))
			}
			s.AzPos -= c.cfg.DeltaAzPerCycle
		}
		return
	}

	s.MoveCode = 0
	s.AzPos = s.LastAzimuthGoto
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
