package dhcpv4

import (
	"bytes"
	"net"
	"testing"
)

func buildMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", s, err)
	}
	return mac
}

func TestOutgoingMessageRoundTrip(t *testing.T) {
	out := NewOutgoingMessage(OverloadNone)
	h := out.HeaderMut()
	h.Op = OpBootRequest
	h.HType = HTypeEthernet
	h.HLen = 6
	h.XID = 0xDEADBEEF
	h.Secs = 1
	h.CHAddr = buildMAC(t, "02:00:00:00:00:01")
	h.CIAddr = net.IPv4zero
	h.YIAddr = net.IPv4zero
	h.SIAddr = net.IPv4zero
	h.GIAddr = net.IPv4zero

	if err := out.Append(OptionDHCPMessageType, []byte{byte(MessageTypeDiscover)}); err != nil {
		t.Fatalf("Append(MESSAGE_TYPE): %v", err)
	}

	raw := out.Raw()
	if len(raw) < MinPacketSize {
		t.Fatalf("Raw() length = %d, want >= %d", len(raw), MinPacketSize)
	}

	in, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if in.Header().XID != 0xDEADBEEF {
		t.Errorf("XID = %#x, want 0xDEADBEEF", in.Header().XID)
	}
	if in.Header().Secs != 1 {
		t.Errorf("Secs = %d, want 1", in.Header().Secs)
	}
	if in.MessageType() != MessageTypeDiscover {
		t.Errorf("MessageType = %v, want DISCOVER", in.MessageType())
	}
	if !bytes.Equal(in.Header().CHAddr, h.CHAddr) {
		t.Errorf("CHAddr = %v, want %v", in.Header().CHAddr, h.CHAddr)
	}
}

func TestOutgoingMessageAppendReplacesOption(t *testing.T) {
	out := NewOutgoingMessage(OverloadNone)
	if err := out.Append(OptionRequestedIP, IPToBytes(net.IPv4(192, 0, 2, 10))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := out.Append(OptionRequestedIP, IPToBytes(net.IPv4(192, 0, 2, 20))); err != nil {
		t.Fatalf("Append (replace): %v", err)
	}
	if len(out.codes) != 1 {
		t.Fatalf("codes = %v, want a single entry after replace", out.codes)
	}
	if got := out.values[OptionRequestedIP]; !bytes.Equal(got, IPToBytes(net.IPv4(192, 0, 2, 20))) {
		t.Errorf("REQUESTED_IP = %v, want the replacement value", got)
	}
}

func TestOutgoingMessageOverflowWithoutOverload(t *testing.T) {
	out := NewOutgoingMessage(OverloadNone)
	big := bytes.Repeat([]byte{0xAA}, 200)
	err := out.Append(OptionVendorClassID, big)
	if err != ErrOverflow {
		t.Fatalf("Append(200 bytes, no overload) = %v, want ErrOverflow", err)
	}
}

func TestOutgoingMessageSpillsIntoFileAndSname(t *testing.T) {
	out := NewOutgoingMessage(OverloadFile | OverloadSname)
	h := out.HeaderMut()
	h.Op = OpBootRequest
	h.HType = HTypeEthernet
	h.HLen = 6
	h.XID = 1
	h.Secs = 1
	h.CHAddr = buildMAC(t, "02:00:00:00:00:01")
	h.CIAddr = net.IPv4zero
	h.YIAddr = net.IPv4zero
	h.SIAddr = net.IPv4zero
	h.GIAddr = net.IPv4zero

	// Large enough to overflow mainOptionsCapacity but fit once both
	// legacy fields are available.
	big := bytes.Repeat([]byte{0x42}, 150)
	if err := out.Append(OptionVendorClassID, big); err != nil {
		t.Fatalf("Append with overload available: %v", err)
	}

	raw := out.Raw()
	in, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	got, ok := in.Query(OptionVendorClassID)
	if !ok {
		t.Fatalf("VENDOR_CLASS_ID missing after overload round trip")
	}
	if !bytes.Equal(got, big) {
		t.Errorf("VENDOR_CLASS_ID round trip mismatch: got %d bytes, want %d", len(got), len(big))
	}
}

func TestOutgoingMessageOverflowEvenWithOverload(t *testing.T) {
	out := NewOutgoingMessage(OverloadBoth)
	// Overload space is 60 + 128 + 64 bytes, minus 3 for the OVERLOAD option
	// and 1 for END: 248. A 200-byte value (202 with code and length) fits.
	big := bytes.Repeat([]byte{0x01}, 200)
	if err := out.Append(OptionVendorClassID, big); err != nil {
		t.Fatalf("Append(200 bytes): %v", err)
	}
	huge := bytes.Repeat([]byte{0x01}, 255)
	if err := out.Append(OptionHostname, huge); err != ErrOverflow {
		t.Fatalf("Append(second 255 bytes) = %v, want ErrOverflow", err)
	}
}

func TestParseMessageRejectsShortPacket(t *testing.T) {
	_, err := ParseMessage(make([]byte, 100))
	if err == nil {
		t.Fatal("ParseMessage(short packet) = nil error, want error")
	}
}

func TestParseMessageRejectsBadCookie(t *testing.T) {
	data := make([]byte, MinPacketSize)
	_, err := ParseMessage(data)
	if err == nil {
		t.Fatal("ParseMessage(zero cookie) = nil error, want error")
	}
}

func TestParseMessageReadsOptions(t *testing.T) {
	data := make([]byte, MinPacketSize)
	copy(data[236:240], MagicCookie[:])
	data[240] = byte(OptionDHCPMessageType)
	data[241] = 1
	data[242] = byte(MessageTypeOffer)
	data[243] = byte(OptionServerIdentifier)
	data[244] = 4
	copy(data[245:249], []byte{192, 0, 2, 1})
	data[249] = byte(OptionEnd)

	in, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if in.MessageType() != MessageTypeOffer {
		t.Errorf("MessageType = %v, want OFFER", in.MessageType())
	}
	if sid := in.ServerIdentifier(); !sid.Equal(net.IPv4(192, 0, 2, 1)) {
		t.Errorf("ServerIdentifier = %v, want 192.0.2.1", sid)
	}
}
