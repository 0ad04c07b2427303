package securechannel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/backkem/mcsync/pkg/message"
)

// StatusReportMinSize is GeneralCode(2) + ProtocolID(4) + ProtocolCode(2).
const StatusReportMinSize = 8

// ErrStatusReportTooShort is returned when decoding fewer than
// StatusReportMinSize bytes.
var ErrStatusReportTooShort = errors.New("securechannel: status report too short")

// secureChannelProtocol is the 32-bit vendor-qualified protocol ID
// (vendor 0 in the upper half).
const secureChannelProtocol = uint32(message.ProtocolSecureChannel)

// StatusReport reports the outcome of a protocol operation.
type StatusReport struct {
	GeneralCode  GeneralCode
	ProtocolID   uint32 // VendorID (upper 16) | ProtocolID (lower 16)
	ProtocolCode uint16
	ProtocolData []byte
}

// NewSecureChannelStatusReport creates a StatusReport for the Secure Channel
// protocol with no protocol data.
func NewSecureChannelStatusReport(general GeneralCode, code ProtocolCode) *StatusReport {
	return &StatusReport{
		GeneralCode:  general,
		ProtocolID:   secureChannelProtocol,
		ProtocolCode: uint16(code),
	}
}

// CloseSession asks the peer to tear the session down.
func CloseSession() *StatusReport {
	return NewSecureChannelStatusReport(GeneralCodeSuccess, ProtocolCodeCloseSession)
}

// Busy tells the peer to wait at least waitTimeMs before retrying.
func Busy(waitTimeMs uint16) *StatusReport {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, waitTimeMs)
	return &StatusReport{
		GeneralCode:  GeneralCodeBusy,
		ProtocolID:   secureChannelProtocol,
		ProtocolCode: uint16(ProtocolCodeBusy),
		ProtocolData: data,
	}
}

// Encode serializes the StatusReport.
func (s *StatusReport) Encode() []byte {
	buf := make([]byte, StatusReportMinSize+len(s.ProtocolData))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(s.GeneralCode))
	binary.LittleEndian.PutUint32(buf[2:6], s.ProtocolID)
	binary.LittleEndian.PutUint16(buf[6:8], s.ProtocolCode)
	copy(buf[StatusReportMinSize:], s.ProtocolData)
	return buf
}

// DecodeStatusReport parses a StatusReport.
func DecodeStatusReport(data []byte) (*StatusReport, error) {
	if len(data) < StatusReportMinSize {
		return nil, ErrStatusReportTooShort
	}

	s := &StatusReport{
		GeneralCode:  GeneralCode(binary.LittleEndian.Uint16(data[0:2])),
		ProtocolID:   binary.LittleEndian.Uint32(data[2:6]),
		ProtocolCode: binary.LittleEndian.Uint16(data[6:8]),
	}
	if len(data) > StatusReportMinSize {
		s.ProtocolData = append([]byte(nil), data[StatusReportMinSize:]...)
	}
	return s, nil
}

// IsSecureChannel returns true if the status is for the Secure Channel protocol.
func (s *StatusReport) IsSecureChannel() bool {
	return s.ProtocolID == secureChannelProtocol
}

// IsCloseSession returns true for a CloseSession report.
func (s *StatusReport) IsCloseSession() bool {
	return s.GeneralCode == GeneralCodeSuccess &&
		s.IsSecureChannel() &&
		ProtocolCode(s.ProtocolCode) == ProtocolCodeCloseSession
}

// IsBusy returns true for a Busy report.
func (s *StatusReport) IsBusy() bool {
	return s.GeneralCode == GeneralCodeBusy &&
		s.IsSecureChannel() &&
		ProtocolCode(s.ProtocolCode) == ProtocolCodeBusy
}

// BusyWaitTime returns the requested wait in milliseconds, or 0 if this is
// not a Busy report or the wait time is missing.
func (s *StatusReport) BusyWaitTime() uint16 {
	if !s.IsBusy() || len(s.ProtocolData) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(s.ProtocolData)
}

func (s *StatusReport) String() string {
	if s.IsSecureChannel() {
		return fmt.Sprintf("StatusReport{General: %s, Protocol: SecureChannel, Code: %s}",
			s.GeneralCode, ProtocolCode(s.ProtocolCode))
	}
	return fmt.Sprintf("StatusReport{General: %s, ProtocolID: 0x%08X, Code: 0x%04X}",
		s.GeneralCode, s.ProtocolID, s.ProtocolCode)
}

// Error implements the error interface for StatusReport.
func (s *StatusReport) Error() string {
	return s.String()
}
