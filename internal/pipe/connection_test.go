package pipe

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/loginhelper/internal/protocol"
)

// newTestPair returns a helper-side connection plus the host ends of its pipes.
func newTestPair(t *testing.T) (conn *Connection, hostIn *os.File, hostOut *os.File) {
	t.Helper()

	helperIn, toHelper, err := os.Pipe()
	require.NoError(t, err)
	fromHelper, helperOut, err := os.Pipe()
	require.NoError(t, err)

	conn = NewConnection(helperIn, helperOut)
	t.Cleanup(func() {
		conn.Close()
		toHelper.Close()
		fromHelper.Close()
	})
	return conn, fromHelper, toHelper
}

func TestSendIsFlushedImmediately(t *testing.T) {
	conn, fromHelper, _ := newTestPair(t)

	require.NoError(t, conn.Send(protocol.OpPrint, "hello"))
	require.NoError(t, conn.Sendf(protocol.OpBroadcast, "%s is here", "bob"))

	msg, err := protocol.ReadMessage(fromHelper)
	require.NoError(t, err)
	assert.Equal(t, protocol.Message{Op: protocol.OpPrint, Arg: "hello"}, msg)

	msg, err = protocol.ReadMessage(fromHelper)
	require.NoError(t, err)
	assert.Equal(t, protocol.Message{Op: protocol.OpBroadcast, Arg: "bob is here"}, msg)

	assert.Equal(t, uint64(2), conn.Stats().Sent)
}

func TestSendRejectsInvalidOpcode(t *testing.T) {
	conn, _, _ := newTestPair(t)

	err := conn.Send(protocol.Opcode("NOPE"), "x")
	assert.ErrorIs(t, err, protocol.ErrInvalidOpcode)
	assert.Zero(t, conn.Stats().Sent)
}

func TestReceive(t *testing.T) {
	conn, _, toHelper := newTestPair(t)

	require.NoError(t, protocol.WriteMessage(toHelper, protocol.Message{Op: protocol.OpClientOutput, Arg: "mihawk"}))

	msg, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, "mihawk", msg.Arg)
	assert.Equal(t, uint64(1), conn.Stats().Received)
}

func TestReceiveEndOfStream(t *testing.T) {
	conn, _, toHelper := newTestPair(t)
	require.NoError(t, toHelper.Close())

	_, err := conn.Receive()
	assert.ErrorIs(t, err, protocol.ErrEndOfStream)
}

func TestReceiveWithinTimesOut(t *testing.T) {
	conn, _, _ := newTestPair(t)

	start := time.Now()
	_, ok, err := conn.ReceiveWithin(50 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
	assert.Zero(t, conn.Stats().Received)
}

func TestReceiveWithinReturnsPendingMessage(t *testing.T) {
	conn, _, toHelper := newTestPair(t)

	require.NoError(t, protocol.WriteMessage(toHelper, protocol.Message{Op: protocol.OpClientOutput, Arg: "!hello"}))

	start := time.Now()
	msg, ok, err := conn.ReceiveWithin(5 * time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "!hello", msg.Arg)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReceiveWithinWakesOnLateMessage(t *testing.T) {
	conn, _, toHelper := newTestPair(t)

	go func() {
		time.Sleep(30 * time.Millisecond)
		protocol.WriteMessage(toHelper, protocol.Message{Op: protocol.OpClientOutput, Arg: "late"})
	}()

	msg, ok, err := conn.ReceiveWithin(5 * time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "late", msg.Arg)
}

func TestReceiveWithinHangup(t *testing.T) {
	conn, _, toHelper := newTestPair(t)
	require.NoError(t, toHelper.Close())

	_, ok, err := conn.ReceiveWithin(5 * time.Second)
	assert.False(t, ok)
	assert.True(t, protocol.IsEndOfStream(err))
}

func TestClosedConnection(t *testing.T) {
	conn, _, _ := newTestPair(t)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.True(t, conn.IsClosed())
	assert.ErrorIs(t, conn.Send(protocol.OpPrint, "x"), ErrClosed)
	_, err := conn.Receive()
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = conn.ReceiveWithin(time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}
