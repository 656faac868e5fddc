package mockcontroller

import (
	"context"
	"net"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/protocol"
)

func startController(t *testing.T) (*Controller, func()) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CyclePeriod = 5 * time.Millisecond
	c := New(cfg, log.New())

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	go func() {
		go func() {
			for c.Addr() == nil {
				time.Sleep(time.Millisecond)
			}
			close(ready)
		}()
		c.Run(ctx)
	}()
	<-ready
	return c, cancel
}

func dialController(t *testing.T, c *Controller) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", c.Addr().String())
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, byte('>'), buf[0])
	return conn
}

func sendAndReadPrompt(t *testing.T, conn net.Conn, cmd protocol.Command) string {
	t.Helper()
	_, err := conn.Write(cmd.Encode())
	require.NoError(t, err)

	buf := make([]byte, 4096)
	var acc []byte
	for {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		acc = append(acc, buf[:n]...)
		if acc[len(acc)-1] == '>' {
			return string(acc[:len(acc)-1])
		}
	}
}

func TestAzimuthConvergesToGoto(t *testing.T) {
	c, cancel := startController(t)
	defer cancel()

	conn := dialController(t, c)
	defer conn.Close()

	sendAndReadPrompt(t, conn, protocol.MoveAz(10))

	ctx, timeoutCancel := context.WithTimeout(context.Background(), time.Second)
	defer timeoutCancel()

	deadline := time.Now().Add(800 * time.Millisecond)
	var converged bool
	for time.Now().Before(deadline) {
		s, err := c.Status(ctx)
		require.NoError(t, err)
		if s.AzPos == s.LastAzimuthGoto {
			converged = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, converged, "azimuth did not converge to the commanded goto")
}

func TestStopMotionIsIdempotent(t *testing.T) {
	c, cancel := startController(t)
	defer cancel()

	conn := dialController(t, c)
	defer conn.Close()

	sendAndReadPrompt(t, conn, protocol.MoveAz(50))
	time.Sleep(20 * time.Millisecond)
	sendAndReadPrompt(t, conn, protocol.StopMotion())

	ctx, timeoutCancel := context.WithTimeout(context.Background(), time.Second)
	defer timeoutCancel()
	first, err := c.Status(ctx)
	require.NoError(t, err)

	sendAndReadPrompt(t, conn, protocol.StopMotion())
	second, err := c.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.AzPos, second.AzPos)
	assert.Equal(t, first.LastAzimuthGoto, second.LastAzimuthGoto)
	assert.Equal(t, first.MoveCode, second.MoveCode)
	assert.Equal(t, first.LastAzimuthGoto, first.AzPos)
}

func TestGetStatusOverWire(t *testing.T) {
	c, cancel := startController(t)
	defer cancel()

	conn := dialController(t, c)
	defer conn.Close()

	text := sendAndReadPrompt(t, conn, protocol.GetStatus())
	assert.Contains(t, text, "MAIN CLOSED 000")
}
