// Package protocol defines the bridge wire protocol: opcodes, commands and
// the frame codec shared by the stream transports.
package protocol

import "fmt"

// Opcode identifies a command on the wire.
type Opcode uint8

// Opcodes received from the client.
const (
	OpPing         Opcode = 0x01 // request a pong
	OpPrint        Opcode = 0x02 // print text
	OpResponse     Opcode = 0x03 // reply to a pending public call
	OpReconnect    Opcode = 0x04 // client is about to reconnect
	OpRegisterCall Opcode = 0x05 // register a public call
	OpFindNative   Opcode = 0x06 // resolve a native handle
	OpInvokeNative Opcode = 0x07 // invoke a native
	OpStart        Opcode = 0x08 // client started
	OpDisconnect   Opcode = 0x09 // client is about to disconnect
	OpAlive        Opcode = 0x10 // liveness probe
)

// Opcodes sent to the client.
const (
	OpTick       Opcode = 0x11
	OpPong       Opcode = 0x12
	OpPublicCall Opcode = 0x13
	OpReply      Opcode = 0x14 // reply to find_native / invoke_native
	OpAnnounce   Opcode = 0x15
)

// MaxFrameSize bounds the payload of a single command in either direction.
const MaxFrameSize = 16384

// ProtocolVersion is announced to the client after every connect.
const ProtocolVersion uint32 = 1

var opcodeNames = map[Opcode]string{
	OpPing:         "ping",
	OpPrint:        "print",
	OpResponse:     "response",
	OpReconnect:    "reconnect",
	OpRegisterCall: "register_call",
	OpFindNative:   "find_native",
	OpInvokeNative: "invoke_native",
	OpStart:        "start",
	OpDisconnect:   "disconnect",
	OpAlive:        "alive",
	OpTick:         "tick",
	OpPong:         "pong",
	OpPublicCall:   "public_call",
	OpReply:        "reply",
	OpAnnounce:     "announce",
}

// String returns the protocol name of the opcode, or its hex value when unknown.
func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("0x%02x", uint8(o))
}

// Command is one decoded opcode plus payload unit.
type Command struct {
	Op      Opcode
	Payload []byte
}
