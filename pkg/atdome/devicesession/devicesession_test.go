package devicesession

import (
	"context"
	"net"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/protocol"
	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/status"
)

// fakeController accepts a single connection, writes a banner and the
// startup prompt, then echoes a canned reply plus a trailing '>' for
// every line it reads.
func fakeController(t *testing.T, ln net.Listener, replies map[string]string) {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ATDome controller booting\n>"))
	require.NoError(t, err)

	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		cmd := protocol.Parse(string(buf[:n]))
		reply := replies[cmd.String()]
		conn.Write([]byte(reply))
		conn.Write([]byte{'>'})
	}
}

func dialTest(t *testing.T, replies map[string]string) (*Session, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go fakeController(t, ln, replies)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := Dial(ctx, ln.Addr().String(), log.New())
	require.NoError(t, err)

	return sess, func() {
		sess.Close()
		ln.Close()
	}
}

func TestDialDiscardsBanner(t *testing.T) {
	sess, cleanup := dialTest(t, map[string]string{})
	defer cleanup()
	assert.NotNil(t, sess)
}

func TestSendGetStatusParsesReply(t *testing.T) {
	want := status.Default()
	want.AzPos = 45
	want.LastAzimuthGoto = 45

	sess, cleanup := dialTest(t, map[string]string{
		"GetStatus": want.Render(),
	})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := sess.Send(ctx, protocol.GetStatus())
	require.NoError(t, err)
	require.NotNil(t, reply.Status)
	assert.Equal(t, want.AzPos, reply.Status.AzPos)
	assert.Equal(t, want.LastAzimuthGoto, reply.Status.LastAzimuthGoto)
}

func TestSendNonStatusCommandRepliesNone(t *testing.T) {
	sess, cleanup := dialTest(t, map[string]string{})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := sess.Send(ctx, protocol.StopMotion())
	require.NoError(t, err)
	assert.Nil(t, reply.Status)
}

func TestSendAfterCloseFails(t *testing.T) {
	sess, cleanup := dialTest(t, map[string]string{})
	cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := sess.Send(ctx, protocol.StopMotion())
	assert.Error(t, err)
}
