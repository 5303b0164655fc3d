package main

import (
	"net"
	"testing"

	"github.com/athena-dhcpd/dhcp4c/internal/config"
	"github.com/athena-dhcpd/dhcp4c/pkg/dhcpv4"
)

func TestLinkParamsEthernet(t *testing.T) {
	chaddr := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	htype, hlen, bhaddr, err := linkParams(config.LinkTypeEthernet, chaddr)
	if err != nil {
		t.Fatalf("linkParams: %v", err)
	}
	if htype != dhcpv4.HTypeEthernet {
		t.Errorf("htype = %v, want HTypeEthernet", htype)
	}
	if hlen != 6 {
		t.Errorf("hlen = %d, want 6", hlen)
	}
	if len(bhaddr) != 6 {
		t.Fatalf("bhaddr length = %d, want 6", len(bhaddr))
	}
	for _, b := range bhaddr {
		if b != 0xff {
			t.Fatalf("bhaddr = %v, want all-ones", bhaddr)
		}
	}
}

func TestLinkParamsInfiniBand(t *testing.T) {
	chaddr := make(net.HardwareAddr, 20)
	for i := range chaddr {
		chaddr[i] = byte(i)
	}
	htype, hlen, bhaddr, err := linkParams(config.LinkTypeInfiniBand, chaddr)
	if err != nil {
		t.Fatalf("linkParams: %v", err)
	}
	if htype != dhcpv4.HTypeInfiniBand {
		t.Errorf("htype = %v, want HTypeInfiniBand", htype)
	}
	if hlen != 0 {
		t.Errorf("hlen = %d, want 0 (never written to the wire for InfiniBand)", hlen)
	}
	if len(bhaddr) != 20 {
		t.Fatalf("bhaddr length = %d, want 20", len(bhaddr))
	}
	for _, b := range bhaddr {
		if b != 0xff {
			t.Fatalf("bhaddr = %v, want all-ones", bhaddr)
		}
	}
}

func TestLinkParamsRejectsOversizedEthernetAddress(t *testing.T) {
	chaddr := make(net.HardwareAddr, int(dhcpv4.MaxCHAddrLen)+1)
	if _, _, _, err := linkParams(config.LinkTypeEthernet, chaddr); err == nil {
		t.Fatal("expected error for an Ethernet hardware address longer than MaxCHAddrLen")
	}
}

func TestLinkParamsRejectsUnknownLinkType(t *testing.T) {
	if _, _, _, err := linkParams("token-ring", net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}); err == nil {
		t.Fatal("expected error for an unsupported link_type")
	}
}
