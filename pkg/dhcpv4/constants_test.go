package dhcpv4

import "testing"

func TestMessageTypeString(t *testing.T) {
	tests := []struct {
		mt   MessageType
		want string
	}{
		{MessageTypeDiscover, "DHCPDISCOVER"},
		{MessageTypeOffer, "DHCPOFFER"},
		{MessageTypeRequest, "DHCPREQUEST"},
		{MessageTypeDecline, "DHCPDECLINE"},
		{MessageTypeAck, "DHCPACK"},
		{MessageTypeNak, "DHCPNAK"},
		{MessageTypeRelease, "DHCPRELEASE"},
		{MessageTypeInform, "DHCPINFORM"},
		{MessageType(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.mt.String(); got != tt.want {
			t.Errorf("MessageType(%d).String() = %q, want %q", tt.mt, got, tt.want)
		}
	}
}

func TestOptionCodeValues(t *testing.T) {
	// Verify key option codes match RFC 2132 values.
	tests := []struct {
		code OptionCode
		want byte
	}{
		{OptionPad, 0},
		{OptionSubnetMask, 1},
		{OptionRouter, 3},
		{OptionDomainNameServer, 6},
		{OptionHostname, 12},
		{OptionDomainName, 15},
		{OptionInterfaceMTU, 26},
		{OptionRequestedIP, 50},
		{OptionIPLeaseTime, 51},
		{OptionOverload, 52},
		{OptionDHCPMessageType, 53},
		{OptionServerIdentifier, 54},
		{OptionParameterRequestList, 55},
		{OptionErrorMessage, 56},
		{OptionMaxDHCPMessageSize, 57},
		{OptionRenewalTime, 58},
		{OptionRebindingTime, 59},
		{OptionVendorClassID, 60},
		{OptionClientIdentifier, 61},
		{OptionEnd, 255},
	}
	for _, tt := range tests {
		if byte(tt.code) != tt.want {
			t.Errorf("OptionCode %d: got %d, want %d", tt.code, byte(tt.code), tt.want)
		}
	}
}

func TestHardwareTypeValues(t *testing.T) {
	if HTypeEthernet != 1 {
		t.Errorf("HTypeEthernet = %d, want 1", HTypeEthernet)
	}
	if HTypeInfiniBand != 32 {
		t.Errorf("HTypeInfiniBand = %d, want 32", HTypeInfiniBand)
	}
}

func TestOpCodeValues(t *testing.T) {
	if OpBootRequest != 1 {
		t.Errorf("OpBootRequest = %d, want 1", OpBootRequest)
	}
	if OpBootReply != 2 {
		t.Errorf("OpBootReply = %d, want 2", OpBootReply)
	}
}

func TestOverloadFlagValues(t *testing.T) {
	if OverloadNone != 0 || OverloadFile != 1 || OverloadSname != 2 || OverloadBoth != 3 {
		t.Errorf("overload flags = %d,%d,%d,%d, want 0,1,2,3", OverloadNone, OverloadFile, OverloadSname, OverloadBoth)
	}
}

func TestPacketSizeConstants(t *testing.T) {
	if MinPacketSize != 300 {
		t.Errorf("MinPacketSize = %d, want 300", MinPacketSize)
	}
	if MaxPacketSize != 1500 {
		t.Errorf("MaxPacketSize = %d, want 1500", MaxPacketSize)
	}
	if UDPMaxSize != 576 {
		t.Errorf("UDPMaxSize = %d, want 576", UDPMaxSize)
	}
	if HeaderLen != 236 {
		t.Errorf("HeaderLen = %d, want 236", HeaderLen)
	}
	if ServerPort != 67 {
		t.Errorf("ServerPort = %d, want 67", ServerPort)
	}
	if ClientPort != 68 {
		t.Errorf("ClientPort = %d, want 68", ClientPort)
	}
}

func TestMagicCookie(t *testing.T) {
	expected := [4]byte{99, 130, 83, 99}
	if MagicCookie != expected {
		t.Errorf("MagicCookie = %v, want %v", MagicCookie, expected)
	}
}
