// Package supervisor implements the ATDome bridge's lifecycle state
// machine: the Standby/Disabled/Enabled/Fault/Offline summary states,
// the heartbeat and telemetry background tasks, and command intake
// serialized onto one FIFO queue — plus forwarding of device-level
// motion commands to the owned DeviceSession while Enabled.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/devicesession"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/protocol"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/status"
)

// HeartbeatTime is inherited from the external framework's nominal
// heartbeat cadence.
const HeartbeatTime = time.Second

const telemetryCycle = time.Second

const commandQueueCapacity = 32

// Device is the subset of devicesession.Session the Supervisor needs to
// forward commands to the real or mock controller.
type Device interface {
	Send(ctx context.Context, cmd protocol.Command) (devicesession.Reply, error)
}

// commandRequest is one queued lifecycle or device command awaiting
// serialized processing.
type commandRequest struct {
	name     transitionCommand
	device   protocol.Command
	isDevice bool
	result   chan CommandResult
}

// CommandResult is the outcome of one processed command: either a
// successful completion or a failure carrying the message a caller
// would present back to an operator.
type CommandResult struct {
	OK      bool
	Message string
}

// Supervisor owns the summary state machine, the background heartbeat
// and telemetry tasks, and (optionally) a Device to forward motion
// commands to while Enabled.
type Supervisor struct {
	mu    sync.Mutex
	state State

	publisher EventPublisher
	device    Device
	logger    log.FieldLogger

	queue chan commandRequest

	telemetryCancel context.CancelFunc
	telemetryDone   chan struct{}

	lastStatus    status.Status
	hasLastStatus bool
}

// New constructs a Supervisor in Standby. Run must be called once to
// start its background tasks and command-processing loop.
func New(publisher EventPublisher, device Device, logger log.FieldLogger) *Supervisor {
	return &Supervisor{
		state:     StateStandby,
		publisher: publisher,
		device:    device,
		logger:    logger.WithField("component", "supervisor"),
		queue:     make(chan commandRequest, commandQueueCapacity),
	}
}

// State returns the current summary state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run starts the heartbeat task and the command-processing loop. It
// blocks until ctx is cancelled, at which point every task the
// Supervisor owns (heartbeat, telemetry if running) stops with it.
func (s *Supervisor) Run(ctx context.Context) error {
	go s.runHeartbeat(ctx)

	for {
		select {
		case req := <-s.queue:
			s.process(ctx, req)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Supervisor) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.publisher.PublishHeartbeat(); err != nil {
				s.logger.WithError(err).Error("heartbeat publish failed, stopping heartbeat task")
				return
			}
		}
	}
}

func (s *Supervisor) runTelemetry(ctx context.Context) {
	defer close(s.telemetryDone)

	ticker := time.NewTicker(telemetryCycle)
	defer ticker.Stop()

	values := map[string]any{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updated, ok := s.pollTelemetryUpdate(ctx)
			if ok {
				for k, v := range updated {
					values[k] = v
				}
			}
			if err := s.publisher.PublishTelemetry(values); err != nil {
				s.logger.WithError(err).Warn("telemetry publish failed")
			}
		}
	}
}

// pollTelemetryUpdate waits up to telemetryCycle for fresh device
// status; a timeout is a soft fallback, not an error: the caller
// republishes whatever it already had.
func (s *Supervisor) pollTelemetryUpdate(ctx context.Context) (map[string]any, bool) {
	if s.device == nil {
		return nil, false
	}
	reqCtx, cancel := context.WithTimeout(ctx, telemetryCycle)
	defer cancel()

	reply, err := s.device.Send(reqCtx, protocol.GetStatus())
	if err != nil || reply.Status == nil {
		return nil, false
	}

	s.mu.Lock()
	s.lastStatus = *reply.Status
	s.hasLastStatus = true
	s.mu.Unlock()

	return map[string]any{
		"azPos":           reply.Status.AzPos,
		"lastAzimuthGoto": reply.Status.LastAzimuthGoto,
		"moveCode":        reply.Status.MoveCode,
		"mainDoorPct":     reply.Status.MainDoorPct,
		"dropoutDoorPct":  reply.Status.DropoutDoorPct,
	}, true
}

func (s *Supervisor) submit(ctx context.Context, req commandRequest) CommandResult {
	select {
	case s.queue <- req:
	case <-ctx.Done():
		return CommandResult{OK: false, Message: ctx.Err().Error()}
	}

	select {
	case res := <-req.result:
		return res
	case <-ctx.Done():
		return CommandResult{OK: false, Message: ctx.Err().Error()}
	}
}

func (s *Supervisor) process(ctx context.Context, req commandRequest) {
	if req.isDevice {
		req.result <- s.processDeviceCommand(ctx, req.device)
		return
	}
	req.result <- s.processTransition(ctx, req.name)
}

func (s *Supervisor) processTransition(ctx context.Context, cmd transitionCommand) CommandResult {
	s.mu.Lock()
	current := s.state
	next, ok := admits(cmd, current)
	if !ok {
		s.mu.Unlock()
		return CommandResult{
			OK:      false,
			Message: fmt.Sprintf("Invalid state transition %s -> %s.", current, targetOf(cmd)),
		}
	}
	s.state = next
	s.mu.Unlock()

	if err := s.publisher.PublishSummaryState(next); err != nil {
		s.logger.WithError(err).Error("failed to publish summary state")
		return CommandResult{OK: false, Message: fmt.Sprintf("failed to publish summary state: %v", err)}
	}

	switch cmd {
	case cmdStart:
		telemetryCtx, cancel := context.WithCancel(ctx)
		s.telemetryCancel = cancel
		s.telemetryDone = make(chan struct{})
		go s.runTelemetry(telemetryCtx)
	case cmdDisable:
		if s.telemetryCancel != nil {
			s.logger.Debug("stopping telemetry task")
			s.telemetryCancel()
			<-s.telemetryDone
			s.telemetryCancel = nil
		}
	}

	return CommandResult{OK: true}
}

// processDeviceCommand forwards a motion command to the owned Device.
// Device commands are only meaningful in Enabled — the failure message
// mirrors the lifecycle transition failure's shape.
func (s *Supervisor) processDeviceCommand(ctx context.Context, cmd protocol.Command) CommandResult {
	s.mu.Lock()
	current := s.state
	s.mu.Unlock()

	if current != StateEnabled {
		return CommandResult{
			OK:      false,
			Message: fmt.Sprintf("device command %s requires Enabled state, got %s.", cmd, current),
		}
	}
	if s.device == nil {
		return CommandResult{OK: false, Message: "no device attached to this supervisor"}
	}

	reply, err := s.device.Send(ctx, cmd)
	if err != nil {
		return CommandResult{OK: false, Message: err.Error()}
	}
	if reply.Status != nil {
		s.mu.Lock()
		s.lastStatus = *reply.Status
		s.hasLastStatus = true
		s.mu.Unlock()
	}
	return CommandResult{OK: true}
}

func targetOf(cmd transitionCommand) State {
	t, ok := transitions[cmd]
	if !ok {
		return StateStandby
	}
	return t.to
}

// Start transitions Standby -> Disabled.
func (s *Supervisor) Start(ctx context.Context) CommandResult {
	return s.submit(ctx, commandRequest{name: cmdStart, result: make(chan CommandResult, 1)})
}

// Enable transitions Disabled -> Enabled.
func (s *Supervisor) Enable(ctx context.Context) CommandResult {
	return s.submit(ctx, commandRequest{name: cmdEnable, result: make(chan CommandResult, 1)})
}

// Disable transitions Enabled -> Disabled.
func (s *Supervisor) Disable(ctx context.Context) CommandResult {
	return s.submit(ctx, commandRequest{name: cmdDisable, result: make(chan CommandResult, 1)})
}

// Standby transitions Disabled or Fault -> Standby.
func (s *Supervisor) Standby(ctx context.Context) CommandResult {
	return s.submit(ctx, commandRequest{name: cmdStandby, result: make(chan CommandResult, 1)})
}

// ExitControl transitions Standby -> Offline.
func (s *Supervisor) ExitControl(ctx context.Context) CommandResult {
	return s.submit(ctx, commandRequest{name: cmdExitControl, result: make(chan CommandResult, 1)})
}

func (s *Supervisor) sendDevice(ctx context.Context, cmd protocol.Command) CommandResult {
	return s.submit(ctx, commandRequest{device: cmd, isDevice: true, result: make(chan CommandResult, 1)})
}

func (s *Supervisor) MoveAzimuth(ctx context.Context, az float32) CommandResult {
	return s.sendDevice(ctx, protocol.MoveAz(az))
}

func (s *Supervisor) CloseDome(ctx context.Context) CommandResult {
	return s.sendDevice(ctx, protocol.CloseShutter())
}

func (s *Supervisor) OpenDome(ctx context.Context) CommandResult {
	return s.sendDevice(ctx, protocol.OpenShutter())
}

func (s *Supervisor) StopMotion(ctx context.Context) CommandResult {
	return s.sendDevice(ctx, protocol.StopMotion())
}

func (s *Supervisor) HomeAzimuth(ctx context.Context) CommandResult {
	return s.sendDevice(ctx, protocol.HomeAzimuth())
}

func (s *Supervisor) OpenMainDoor(ctx context.Context) CommandResult {
	return s.sendDevice(ctx, protocol.OpenShutterMainDoor())
}

func (s *Supervisor) CloseMainDoor(ctx context.Context) CommandResult {
	return s.sendDevice(ctx, protocol.CloseShutterMainDoor())
}

func (s *Supervisor) OpenDropoutDoor(ctx context.Context) CommandResult {
	return s.sendDevice(ctx, protocol.OpenShutterDropoutDoor())
}

func (s *Supervisor) CloseDropoutDoor(ctx context.Context) CommandResult {
	return s.sendDevice(ctx, protocol.CloseShutterDropoutDoor())
}

// Status returns the last status snapshot the Supervisor has observed
// from its Device, either from a device command reply or the telemetry
// task's own polling.
func (s *Supervisor) Status() (status.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus, s.hasLastStatus
}
