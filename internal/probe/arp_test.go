package probe

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

type fakeARPSocket struct {
	sent  [][]byte
	inbox [][]byte
}

func (s *fakeARPSocket) Send(frame []byte) error {
	s.sent = append(s.sent, append([]byte{}, frame...))
	return nil
}

func (s *fakeARPSocket) Recv(buf []byte) (int, error) {
	if len(s.inbox) == 0 {
		return 0, timeoutError{}
	}
	next := s.inbox[0]
	s.inbox = s.inbox[1:]
	return copy(buf, next), nil
}

func (s *fakeARPSocket) Close() error { return nil }

func testProber(t *testing.T, sock *fakeARPSocket) *ARPProber {
	t.Helper()
	return &ARPProber{
		srcMAC:    net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		srcIP:     net.IPv4(192, 0, 2, 10),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		sock:      sock,
		available: true,
	}
}

func TestBuildARPRequestFields(t *testing.T) {
	req := buildARPRequest(net.HardwareAddr{1, 2, 3, 4, 5, 6}, net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2))
	if len(req) != 42 {
		t.Fatalf("want 42-byte frame, got %d", len(req))
	}
	if got := net.HardwareAddr(req[0:6]).String(); got != "ff:ff:ff:ff:ff:ff" {
		t.Errorf("want broadcast destination, got %s", got)
	}
	senderMAC, senderIP, ok := parseARPReply(swapOpToReply(req))
	if !ok {
		t.Fatal("parseARPReply rejected a well-formed frame")
	}
	if senderMAC.String() != "01:02:03:04:05:06" {
		t.Errorf("sender MAC mismatch: %s", senderMAC)
	}
	if !senderIP.Equal(net.IPv4(10, 0, 0, 1)) {
		t.Errorf("sender IP mismatch: %s", senderIP)
	}
}

// swapOpToReply flips a request frame's ARP operation field to "reply" so
// parseARPReply (which only accepts replies) can be exercised against a
// frame built by buildARPRequest.
func swapOpToReply(frame []byte) []byte {
	out := append([]byte{}, frame...)
	out[21] = 0x02
	return out
}

func TestProbeDetectsConflict(t *testing.T) {
	sock := &fakeARPSocket{}
	p := testProber(t, sock)

	target := net.IPv4(192, 0, 2, 99)
	reply := buildARPRequest(net.HardwareAddr{0xaa, 0xbb, 0xcc, 0, 0, 1}, target, p.srcIP)
	reply = swapOpToReply(reply)
	sock.inbox = append(sock.inbox, reply)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	conflict, mac, err := p.Probe(ctx, target)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !conflict {
		t.Fatal("expected conflict to be detected")
	}
	if mac != "aa:bb:cc:00:00:01" {
		t.Errorf("unexpected responder MAC: %s", mac)
	}
	if len(sock.sent) != 1 {
		t.Errorf("want 1 ARP request sent, got %d", len(sock.sent))
	}
}

func TestProbeReturnsClearOnTimeout(t *testing.T) {
	sock := &fakeARPSocket{}
	p := testProber(t, sock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	conflict, _, err := p.Probe(ctx, net.IPv4(192, 0, 2, 99))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if conflict {
		t.Fatal("expected no conflict when nothing replies")
	}
}

func TestUnavailableProberAlwaysReportsClear(t *testing.T) {
	p := &ARPProber{available: false}
	conflict, _, err := p.Probe(context.Background(), net.IPv4(192, 0, 2, 99))
	if err != nil || conflict {
		t.Fatalf("want (false, nil), got (%v, %v)", conflict, err)
	}
}

func TestBuildGratuitousARPIsSelfAddressed(t *testing.T) {
	mac := net.HardwareAddr{0x02, 0, 0, 0, 0, 9}
	ip := net.IPv4(192, 0, 2, 200)
	pkt := buildGratuitousARP(mac, ip)

	senderMAC, senderIP, ok := parseARPReply(swapOpToReply(pkt))
	if !ok {
		t.Fatal("parseARPReply rejected a gratuitous ARP frame")
	}
	if senderMAC.String() != mac.String() {
		t.Errorf("sender MAC mismatch: %s", senderMAC)
	}
	if !senderIP.Equal(ip) {
		t.Errorf("sender IP mismatch: %s", senderIP)
	}
	if !net.IP(pkt[38:42]).Equal(ip) {
		t.Error("gratuitous ARP target protocol address must equal the assigned IP")
	}
}
