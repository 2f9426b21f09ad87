package dap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CMSIS-DAP Command IDs
const (
	CmdInfo              = 0x00
	CmdHostStatus        = 0x01
	CmdConnect           = 0x02
	CmdDisconnect        = 0x03
	CmdTransferConfigure = 0x04
	CmdTransfer          = 0x05
	CmdResetTarget       = 0x0A
	CmdSWJClock          = 0x11
	CmdSWJSequence       = 0x12
	CmdSWDConfigure      = 0x13
)

// DAP_Info Info IDs
const (
	InfoVendorID     = 0x01
	InfoProductID    = 0x02
	InfoSerialNum    = 0x03
	InfoFirmwareVer  = 0x04
	InfoCapabilities = 0xF0
	InfoPacketCount  = 0xFE
	InfoPacketSize   = 0xFF
)

// Connection ports
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

// Status codes
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// DAP_Transfer request bits
const (
	TransferAPnDP = 1 << 0
	TransferRnW   = 1 << 1
	TransferAddr  = 0x0C // A[3:2]
)

// DAP_Transfer response bits
const (
	AckOK            = 0x01
	AckWait          = 0x02
	AckFault         = 0x04
	AckMask          = 0x07
	AckProtocolError = 0x08
)

var (
	// ErrAckWait is returned when the target kept answering WAIT past the
	// configured retry count.
	ErrAckWait = errors.New("dap: target answered WAIT")
	// ErrAckFault is returned when the target answered FAULT; the sticky
	// error flags in CTRL/STAT must be cleared before the next access.
	ErrAckFault = errors.New("dap: target answered FAULT")
	// ErrNoAck is returned when nothing answered on the wire.
	ErrNoAck = errors.New("dap: no acknowledge from target")
	// ErrProtocol is returned for an SWD parity or framing error.
	ErrProtocol = errors.New("dap: SWD protocol error")
)

// TransferError reports which request of a DAP_Transfer failed and how.
type TransferError struct {
	Index int  // requests completed before the failure
	Ack   byte // raw response byte
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("dap: transfer %d failed (ack 0x%02X)", e.Index, e.Ack)
}

// Unwrap maps the ACK to one of the sentinel errors.
func (e *TransferError) Unwrap() error {
	if e.Ack&AckProtocolError != 0 {
		return ErrProtocol
	}
	switch e.Ack & AckMask {
	case AckWait:
		return ErrAckWait
	case AckFault:
		return ErrAckFault
	}
	return ErrNoAck
}

// Transfer is one DP or AP register access inside a DAP_Transfer.
type Transfer struct {
	Request byte
	Data    uint32 // written value; ignored for reads
}

// DPRead builds a read of debug port register addr.
func DPRead(addr uint8) Transfer {
	return Transfer{Request: addr&TransferAddr | TransferRnW}
}

// DPWrite builds a write of debug port register addr.
func DPWrite(addr uint8, v uint32) Transfer {
	return Transfer{Request: addr & TransferAddr, Data: v}
}

// APRead builds a read of access port register addr in the selected bank.
func APRead(addr uint8) Transfer {
	return Transfer{Request: addr&TransferAddr | TransferAPnDP | TransferRnW}
}

// APWrite builds a write of access port register addr in the selected bank.
func APWrite(addr uint8, v uint32) Transfer {
	return Transfer{Request: addr&TransferAddr | TransferAPnDP, Data: v}
}

// Read reports whether the transfer reads a register.
func (t Transfer) Read() bool {
	return t.Request&TransferRnW != 0
}

// AP reports whether the transfer targets the access port.
func (t Transfer) AP() bool {
	return t.Request&TransferAPnDP != 0
}

// Addr returns the register offset A[3:2].
func (t Transfer) Addr() uint8 {
	return t.Request & TransferAddr
}

// Protocol handles encoding/decoding of CMSIS-DAP commands
type Protocol struct {
	PacketSize int
}

// NewProtocol creates a new protocol handler
func NewProtocol(packetSize int) *Protocol {
	return &Protocol{
		PacketSize: packetSize,
	}
}

// EncodeInfo builds a DAP_Info command
func (p *Protocol) EncodeInfo(infoID byte) []byte {
	return []byte{CmdInfo, infoID}
}

// DecodeInfo parses a DAP_Info response
func (p *Protocol) DecodeInfo(resp []byte) (string, error) {
	if len(resp) < 2 {
		return "", fmt.Errorf("response too short")
	}
	if resp[0] != CmdInfo {
		return "", fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}

	length := int(resp[1])
	if len(resp) < 2+length {
		return "", fmt.Errorf("incomplete info string")
	}

	// Some probes NUL-terminate their strings
	s := resp[2 : 2+length]
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return string(s), nil
}

// EncodeConnect builds a DAP_Connect command
func (p *Protocol) EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

// DecodeConnect parses a DAP_Connect response
func (p *Protocol) DecodeConnect(resp []byte) (byte, error) {
	if len(resp) < 2 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdConnect {
		return 0, fmt.Errorf("invalid command ID")
	}
	if resp[1] == 0 {
		return 0, fmt.Errorf("connection failed")
	}
	return resp[1], nil
}

// EncodeDisconnect builds a DAP_Disconnect command
func (p *Protocol) EncodeDisconnect() []byte {
	return []byte{CmdDisconnect}
}

// DecodeDisconnect parses a DAP_Disconnect response
func (p *Protocol) DecodeDisconnect(resp []byte) error {
	return decodeStatus(resp, CmdDisconnect, "disconnect")
}

// EncodeSetClock builds a DAP_SWJ_Clock command
func (p *Protocol) EncodeSetClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

// DecodeSetClock parses response
func (p *Protocol) DecodeSetClock(resp []byte) error {
	return decodeStatus(resp, CmdSWJClock, "set clock")
}

// EncodeSWJSequence builds a DAP_SWJ_Sequence command clocking bits of data
// out on SWDIO/TMS, LSB first. A count of 256 is sent as 0.
func (p *Protocol) EncodeSWJSequence(bits int, data []byte) ([]byte, error) {
	if bits <= 0 || bits > 256 {
		return nil, fmt.Errorf("dap: sequence length %d out of range [1, 256]", bits)
	}
	need := (bits + 7) / 8
	if len(data) < need {
		return nil, fmt.Errorf("dap: sequence data too short, need %d bytes", need)
	}
	cmd := make([]byte, 2+need)
	cmd[0] = CmdSWJSequence
	cmd[1] = byte(bits) // 256 wraps to 0
	copy(cmd[2:], data[:need])
	return cmd, nil
}

// DecodeSWJSequence parses response
func (p *Protocol) DecodeSWJSequence(resp []byte) error {
	return decodeStatus(resp, CmdSWJSequence, "SWJ sequence")
}

// EncodeSWDConfigure builds a DAP_SWD_Configure command. cfg bits [1:0] are
// the turnaround period minus one, bit 2 forces a data phase on WAIT/FAULT.
func (p *Protocol) EncodeSWDConfigure(cfg byte) []byte {
	return []byte{CmdSWDConfigure, cfg}
}

// DecodeSWDConfigure parses response
func (p *Protocol) DecodeSWDConfigure(resp []byte) error {
	return decodeStatus(resp, CmdSWDConfigure, "SWD configure")
}

// EncodeTransferConfigure builds a DAP_TransferConfigure command
func (p *Protocol) EncodeTransferConfigure(idleCycles byte, waitRetry, matchRetry uint16) []byte {
	cmd := make([]byte, 6)
	cmd[0] = CmdTransferConfigure
	cmd[1] = idleCycles
	binary.LittleEndian.PutUint16(cmd[2:], waitRetry)
	binary.LittleEndian.PutUint16(cmd[4:], matchRetry)
	return cmd
}

// DecodeTransferConfigure parses response
func (p *Protocol) DecodeTransferConfigure(resp []byte) error {
	return decodeStatus(resp, CmdTransferConfigure, "transfer configure")
}

// EncodeTransfer builds a DAP_Transfer command
// Each request is: [request][data, writes only]
func (p *Protocol) EncodeTransfer(dapIndex byte, xfers []Transfer) ([]byte, error) {
	if len(xfers) == 0 || len(xfers) > 255 {
		return nil, fmt.Errorf("dap: transfer count %d out of range [1, 255]", len(xfers))
	}

	size := 3
	for _, x := range xfers {
		size++
		if !x.Read() {
			size += 4
		}
	}
	if p.PacketSize > 0 && size > p.PacketSize {
		return nil, fmt.Errorf("dap: transfer needs %d bytes, packet is %d", size, p.PacketSize)
	}

	cmd := make([]byte, size)
	cmd[0] = CmdTransfer
	cmd[1] = dapIndex
	cmd[2] = byte(len(xfers))

	offset := 3
	for _, x := range xfers {
		cmd[offset] = x.Request
		offset++
		if !x.Read() {
			binary.LittleEndian.PutUint32(cmd[offset:], x.Data)
			offset += 4
		}
	}
	return cmd, nil
}

// DecodeTransfer parses a DAP_Transfer response and returns the value of
// every read request, in order.
func (p *Protocol) DecodeTransfer(resp []byte, xfers []Transfer) ([]uint32, error) {
	if len(resp) < 3 {
		return nil, fmt.Errorf("response too short")
	}
	if resp[0] != CmdTransfer {
		return nil, fmt.Errorf("invalid command ID")
	}

	count := int(resp[1])
	ack := resp[2]
	if ack&AckMask != AckOK || ack&AckProtocolError != 0 {
		return nil, &TransferError{Index: count, Ack: ack}
	}
	if count != len(xfers) {
		return nil, fmt.Errorf("dap: %d of %d transfers executed", count, len(xfers))
	}

	var reads []uint32
	offset := 3
	for _, x := range xfers {
		if !x.Read() {
			continue
		}
		if offset+4 > len(resp) {
			return nil, fmt.Errorf("incomplete transfer data")
		}
		reads = append(reads, binary.LittleEndian.Uint32(resp[offset:]))
		offset += 4
	}
	return reads, nil
}

// EncodeResetTarget builds a DAP_ResetTarget command
func (p *Protocol) EncodeResetTarget() []byte {
	return []byte{CmdResetTarget}
}

// DecodeResetTarget parses response. executed is false when the probe has no
// device-specific reset sequence.
func (p *Protocol) DecodeResetTarget(resp []byte) (executed bool, err error) {
	if err := decodeStatus(resp, CmdResetTarget, "reset target"); err != nil {
		return false, err
	}
	return len(resp) > 2 && resp[2] != 0, nil
}

func decodeStatus(resp []byte, cmd byte, what string) error {
	if len(resp) < 2 {
		return fmt.Errorf("response too short")
	}
	if resp[0] != cmd {
		return fmt.Errorf("invalid command ID")
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("%s failed", what)
	}
	return nil
}
