// Package protocol implements the framing and opcode codec spoken between the
// login helper and the game server host over a pair of pipes. Every frame is a
// uint32 length in native byte order followed by a payload whose first five
// bytes name the opcode.
package protocol

// Opcode is the five byte tag at the start of every payload.
type Opcode string

// Opcodes sent by the helper to the host.
const (
	OpPrint         Opcode = "PRINT" // High priority print on the client console
	OpCenterPrint   Opcode = "CPRNT" // Print on the centre of the client's screen
	OpBroadcast     Opcode = "BCAST" // Broadcast message to every connected client
	OpServerCommand Opcode = "SVCMD" // Execute a command on the server console
	OpClientCommand Opcode = "CLCMD" // Execute a command on the client console
	OpInput         Opcode = "INPUT" // Route the client's next output to the helper
	OpLogin         Opcode = "LOGIN" // Admit the client to the server
	OpSetAuth       Opcode = "SAUTH" // Set the *auth userinfo key
	OpUserInfo      Opcode = "UINFO" // Request the client's userinfo string
	OpServerInfo    Opcode = "SINFO" // Request the serverinfo string
)

// Opcodes sent by the host to the helper.
const (
	OpClientOutput Opcode = "CLOUT" // Client output or chat text
	OpEndOfCommand Opcode = "EOCMD" // End of output from a server command
)

// OpcodeSize is the fixed width of every opcode on the wire.
const OpcodeSize = 5

// LengthPrefixSize is the size of the frame length prefix in bytes.
const LengthPrefixSize = 4

// Direction tells which end of the pipe produces an opcode.
type Direction int

const (
	DirUnknown Direction = iota
	DirToHost
	DirToHelper
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	switch d {
	case DirToHost:
		return "to_host"
	case DirToHelper:
		return "to_helper"
	default:
		return "unknown"
	}
}

var opcodeDirections = map[Opcode]Direction{
	OpPrint:         DirToHost,
	OpCenterPrint:   DirToHost,
	OpBroadcast:     DirToHost,
	OpServerCommand: DirToHost,
	OpClientCommand: DirToHost,
	OpInput:         DirToHost,
	OpLogin:         DirToHost,
	OpSetAuth:       DirToHost,
	OpUserInfo:      DirToHost,
	OpServerInfo:    DirToHost,
	OpClientOutput:  DirToHelper,
	OpEndOfCommand:  DirToHelper,
}

// Valid reports whether the opcode has the fixed wire width.
func (o Opcode) Valid() bool {
	return len(o) == OpcodeSize
}

// Known reports whether the opcode is part of the shared contract.
func (o Opcode) Known() bool {
	_, ok := opcodeDirections[o]
	return ok
}

// Direction returns which side sends this opcode.
func (o Opcode) Direction() Direction {
	return opcodeDirections[o]
}

// String returns the opcode text.
func (o Opcode) String() string {
	return string(o)
}
