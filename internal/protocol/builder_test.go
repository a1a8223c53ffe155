package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSplit(t *testing.T) {
	ops := []Opcode{OpPrint, OpInput, OpLogin, OpSetAuth, OpClientCommand, OpBroadcast, OpCenterPrint, OpServerCommand, Opcode("ZZZZZ")}
	args := []string{"", "hello", "say abc: $scr_allowsnap", "\x00\x01binary\xff", "PRINTnested"}

	for _, op := range ops {
		for _, arg := range args {
			payload, err := Encode(Message{Op: op, Arg: arg})
			require.NoError(t, err)
			assert.Equal(t, Message{Op: op, Arg: arg}, Decode(payload))
		}
	}
}

func TestEncodeRejectsInvalidOpcode(t *testing.T) {
	for _, op := range []Opcode{"", "PRNT", "PRINTS"} {
		_, err := Encode(Message{Op: op, Arg: "x"})
		assert.ErrorIs(t, err, ErrInvalidOpcode, "opcode %q", op)
	}
}

func TestWriteMessageInvalidOpcodeWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMessage(&buf, Message{Op: "BAD", Arg: "x"})
	assert.ErrorIs(t, err, ErrInvalidOpcode)
	assert.Zero(t, buf.Len())
}

func TestNewMessagef(t *testing.T) {
	assert.Equal(t, Message{Op: OpSetAuth, Arg: "mihawk"}, NewMessagef(OpSetAuth, "%s", "mihawk"))
	assert.Equal(t, Message{Op: OpBroadcast, Arg: "bob logged in successfully."},
		NewMessagef(OpBroadcast, "%s logged in successfully.", "bob"))
	assert.Equal(t, "100% done", NewMessagef(OpPrint, "%d%% done", 100).Arg)
}

func TestPercentSignsSurviveTheWire(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Message{Op: OpPrint, Arg: "100%"}))

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, "100%", msg.Arg)
}

func TestOpcodeMetadata(t *testing.T) {
	assert.True(t, OpPrint.Valid())
	assert.True(t, OpPrint.Known())
	assert.Equal(t, DirToHost, OpLogin.Direction())
	assert.Equal(t, DirToHelper, OpClientOutput.Direction())
	assert.Equal(t, DirUnknown, Opcode("XXXXX").Direction())
	assert.Equal(t, "to_helper", DirToHelper.String())
}

func TestMessageString(t *testing.T) {
	assert.Equal(t, `[PRINT] a\nb`, Message{Op: OpPrint, Arg: "a\nb"}.String())
}
