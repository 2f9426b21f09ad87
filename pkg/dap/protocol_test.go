package dap

import (
	"bytes"
	"errors"
	"testing"
)

func TestProtocolEncodeInfo(t *testing.T) {
	proto := NewProtocol(64)

	tests := []struct {
		name   string
		infoID byte
		want   []byte
	}{
		{"Vendor ID", InfoVendorID, []byte{0x00, 0x01}},
		{"Product ID", InfoProductID, []byte{0x00, 0x02}},
		{"Serial Number", InfoSerialNum, []byte{0x00, 0x03}},
		{"Packet Size", InfoPacketSize, []byte{0x00, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := proto.EncodeInfo(tt.infoID)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeInfo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProtocolDecodeInfo(t *testing.T) {
	proto := NewProtocol(64)

	tests := []struct {
		name    string
		resp    []byte
		want    string
		wantErr bool
	}{
		{
			name: "valid vendor",
			resp: []byte{0x00, 0x04, 'T', 'e', 's', 't'},
			want: "Test",
		},
		{
			name: "NUL terminated",
			resp: []byte{0x00, 0x05, 'T', 'e', 's', 't', 0x00},
			want: "Test",
		},
		{
			name:    "too short",
			resp:    []byte{0x00},
			wantErr: true,
		},
		{
			name:    "wrong command",
			resp:    []byte{0x01, 0x04, 'T', 'e', 's', 't'},
			wantErr: true,
		},
		{
			name:    "incomplete string",
			resp:    []byte{0x00, 0x10, 'T', 'e', 's', 't'},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := proto.DecodeInfo(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeInfo() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("DecodeInfo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProtocolDecodeConnect(t *testing.T) {
	proto := NewProtocol(64)

	tests := []struct {
		name    string
		resp    []byte
		want    byte
		wantErr bool
	}{
		{"SWD connected", []byte{0x02, 0x01}, PortSWD, false},
		{"connection failed", []byte{0x02, 0x00}, 0, true},
		{"wrong command", []byte{0x03, 0x01}, 0, true},
		{"too short", []byte{0x02}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := proto.DecodeConnect(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeConnect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DecodeConnect() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProtocolEncodeSWJSequence(t *testing.T) {
	proto := NewProtocol(64)

	got, err := proto.EncodeSWJSequence(16, []byte{0x9E, 0xE7})
	if err != nil {
		t.Fatalf("EncodeSWJSequence: %v", err)
	}
	if want := []byte{0x12, 16, 0x9E, 0xE7}; !bytes.Equal(got, want) {
		t.Errorf("EncodeSWJSequence() = %v, want %v", got, want)
	}

	// 51 bits use 7 bytes
	got, err = proto.EncodeSWJSequence(51, lineReset)
	if err != nil {
		t.Fatalf("EncodeSWJSequence: %v", err)
	}
	if len(got) != 2+7 || got[1] != 51 {
		t.Errorf("EncodeSWJSequence(51) = %v", got)
	}

	// 256 is encoded as 0
	got, err = proto.EncodeSWJSequence(256, make([]byte, 32))
	if err != nil {
		t.Fatalf("EncodeSWJSequence: %v", err)
	}
	if got[1] != 0 {
		t.Errorf("count byte = %d, want 0", got[1])
	}

	if _, err := proto.EncodeSWJSequence(0, nil); err == nil {
		t.Errorf("EncodeSWJSequence(0) succeeded")
	}
	if _, err := proto.EncodeSWJSequence(16, []byte{0xFF}); err == nil {
		t.Errorf("EncodeSWJSequence with short data succeeded")
	}
}

func TestProtocolEncodeTransferConfigure(t *testing.T) {
	proto := NewProtocol(64)
	got := proto.EncodeTransferConfigure(2, 0x0180, 0x0003)
	want := []byte{0x04, 0x02, 0x80, 0x01, 0x03, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeTransferConfigure() = %v, want %v", got, want)
	}
}

func TestProtocolEncodeTransfer(t *testing.T) {
	proto := NewProtocol(64)

	got, err := proto.EncodeTransfer(0, []Transfer{
		APWrite(APTAR, 0x10000000),
		APRead(APDRW),
		DPRead(CtrlStat),
	})
	if err != nil {
		t.Fatalf("EncodeTransfer: %v", err)
	}
	want := []byte{
		0x05, 0x00, 0x03,
		0x05, 0x00, 0x00, 0x00, 0x10, // AP write TAR
		0x0F, // AP read DRW
		0x06, // DP read CTRL/STAT
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeTransfer() = % X, want % X", got, want)
	}

	if _, err := proto.EncodeTransfer(0, nil); err == nil {
		t.Errorf("EncodeTransfer with no requests succeeded")
	}

	many := make([]Transfer, 20)
	for i := range many {
		many[i] = APWrite(APDRW, uint32(i))
	}
	if _, err := proto.EncodeTransfer(0, many); err == nil {
		t.Errorf("EncodeTransfer larger than a packet succeeded")
	}
}

func TestProtocolDecodeTransfer(t *testing.T) {
	proto := NewProtocol(64)
	xfers := []Transfer{APWrite(APTAR, 0x20000000), APRead(APDRW)}

	reads, err := proto.DecodeTransfer([]byte{0x05, 0x02, AckOK, 0x78, 0x56, 0x34, 0x12}, xfers)
	if err != nil {
		t.Fatalf("DecodeTransfer: %v", err)
	}
	if len(reads) != 1 || reads[0] != 0x12345678 {
		t.Fatalf("reads = %X", reads)
	}

	tests := []struct {
		name string
		resp []byte
		want error
	}{
		{"fault", []byte{0x05, 0x01, AckFault}, ErrAckFault},
		{"wait", []byte{0x05, 0x00, AckWait}, ErrAckWait},
		{"no ack", []byte{0x05, 0x00, 0x07}, ErrNoAck},
		{"parity", []byte{0x05, 0x01, AckOK | AckProtocolError}, ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := proto.DecodeTransfer(tt.resp, xfers)
			if !errors.Is(err, tt.want) {
				t.Fatalf("DecodeTransfer() = %v, want %v", err, tt.want)
			}
			var te *TransferError
			if !errors.As(err, &te) || te.Index != int(tt.resp[1]) {
				t.Fatalf("TransferError = %+v", te)
			}
		})
	}

	if _, err := proto.DecodeTransfer([]byte{0x05, 0x02, AckOK, 0x01}, xfers); err == nil {
		t.Errorf("DecodeTransfer with truncated data succeeded")
	}
	if _, err := proto.DecodeTransfer([]byte{0x05, 0x01, AckOK}, xfers); err == nil {
		t.Errorf("DecodeTransfer with short count succeeded")
	}
}

func TestProtocolDecodeResetTarget(t *testing.T) {
	proto := NewProtocol(64)

	executed, err := proto.DecodeResetTarget([]byte{0x0A, 0x00, 0x01})
	if err != nil || !executed {
		t.Fatalf("DecodeResetTarget() = %v, %v", executed, err)
	}
	executed, err = proto.DecodeResetTarget([]byte{0x0A, 0x00, 0x00})
	if err != nil || executed {
		t.Fatalf("DecodeResetTarget() = %v, %v", executed, err)
	}
	if _, err := proto.DecodeResetTarget([]byte{0x0A, 0xFF, 0x00}); err == nil {
		t.Fatalf("DecodeResetTarget accepted an error status")
	}
}

func TestTransferRequests(t *testing.T) {
	tests := []struct {
		name string
		x    Transfer
		req  byte
	}{
		{"DP read IDR", DPRead(DPIDR), 0x02},
		{"DP write ABORT", DPWrite(DPAbort, abortClearAll), 0x00},
		{"DP write SELECT", DPWrite(Select, 0xF0), 0x08},
		{"DP read RDBUFF", DPRead(RDBuff), 0x0E},
		{"AP write CSW", APWrite(APCSW, CSWDefault), 0x01},
		{"AP read IDR", APRead(APIDR), 0x0F},
	}
	for _, tt := range tests {
		if tt.x.Request != tt.req {
			t.Errorf("%s: request = 0x%02X, want 0x%02X", tt.name, tt.x.Request, tt.req)
		}
	}
}
