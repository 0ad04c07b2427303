// Package securechannel holds the Secure Channel protocol definitions shared
// by session control handlers: opcodes, status codes and the StatusReport
// message. Counter synchronization lives in the countersync subpackage.
package securechannel

import "github.com/backkem/mcsync/pkg/message"

// Opcode is a Secure Channel protocol message type.
type Opcode uint8

const (
	OpcodeMsgCounterSyncReq Opcode = 0x00 // challenge
	OpcodeMsgCounterSyncRsp Opcode = 0x01 // counter and echoed challenge
	OpcodeStandaloneAck     Opcode = 0x10
	OpcodeStatusReport      Opcode = 0x40
)

// Message types handled on the Secure Channel protocol.
var (
	MsgCounterSyncReq = OpcodeMsgCounterSyncReq.MessageType()
	MsgCounterSyncRsp = OpcodeMsgCounterSyncRsp.MessageType()
	StatusReportType  = OpcodeStatusReport.MessageType()
)

// MessageType qualifies the opcode with the Secure Channel protocol ID.
func (o Opcode) MessageType() message.MessageType {
	return message.MessageType{ProtocolID: message.ProtocolSecureChannel, Opcode: uint8(o)}
}

var opcodeNames = map[Opcode]string{
	OpcodeMsgCounterSyncReq: "MsgCounterSyncReq",
	OpcodeMsgCounterSyncRsp: "MsgCounterSyncRsp",
	OpcodeStandaloneAck:     "StandaloneAck",
	OpcodeStatusReport:      "StatusReport",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "Unknown"
}

// GeneralCode is a protocol-agnostic status code.
type GeneralCode uint16

const (
	GeneralCodeSuccess           GeneralCode = 0
	GeneralCodeFailure           GeneralCode = 1
	GeneralCodeBadPrecondition   GeneralCode = 2
	GeneralCodeBadRequest        GeneralCode = 4
	GeneralCodeUnsupported       GeneralCode = 5
	GeneralCodeResourceExhausted GeneralCode = 7
	GeneralCodeBusy              GeneralCode = 8
	GeneralCodeTimeout           GeneralCode = 9
)

var generalCodeNames = map[GeneralCode]string{
	GeneralCodeSuccess:           "SUCCESS",
	GeneralCodeFailure:           "FAILURE",
	GeneralCodeBadPrecondition:   "BAD_PRECONDITION",
	GeneralCodeBadRequest:        "BAD_REQUEST",
	GeneralCodeUnsupported:       "UNSUPPORTED",
	GeneralCodeResourceExhausted: "RESOURCE_EXHAUSTED",
	GeneralCodeBusy:              "BUSY",
	GeneralCodeTimeout:           "TIMEOUT",
}

func (g GeneralCode) String() string {
	if name, ok := generalCodeNames[g]; ok {
		return name
	}
	return "UNKNOWN"
}

// ProtocolCode is a Secure Channel specific status code.
type ProtocolCode uint16

const (
	ProtocolCodeSuccess         ProtocolCode = 0x0000
	ProtocolCodeInvalidParam    ProtocolCode = 0x0002
	ProtocolCodeCloseSession    ProtocolCode = 0x0003
	ProtocolCodeBusy            ProtocolCode = 0x0004
	ProtocolCodeSessionNotFound ProtocolCode = 0x0005
	ProtocolCodeGeneralFailure  ProtocolCode = 0xFFFF
)

// ProtocolCodeSuccess prints as SESSION_ESTABLISHED.
var protocolCodeNames = map[ProtocolCode]string{
	ProtocolCodeSuccess:         "SESSION_ESTABLISHED",
	ProtocolCodeInvalidParam:    "INVALID_PARAMETER",
	ProtocolCodeCloseSession:    "CLOSE_SESSION",
	ProtocolCodeBusy:            "BUSY",
	ProtocolCodeSessionNotFound: "SESSION_NOT_FOUND",
	ProtocolCodeGeneralFailure:  "GENERAL_FAILURE",
}

func (p ProtocolCode) String() string {
	if name, ok := protocolCodeNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}
