package client

import (
	"net"

	"github.com/athena-dhcpd/dhcp4c/pkg/dhcpv4"
)

// fakeNotifier records Add/Remove calls without touching any real epoll
// instance, matching the Notifier fake called for in this module's design
// for testing the socket/readiness layer in isolation.
type fakeNotifier struct {
	added   map[int]uint64
	removed []int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{added: make(map[int]uint64)}
}

func (n *fakeNotifier) Add(fd int, tag uint64) error {
	n.added[fd] = tag
	return nil
}

func (n *fakeNotifier) Remove(fd int) error {
	n.removed = append(n.removed, fd)
	delete(n.added, fd)
	return nil
}

// fakePacketSocket is a packetSocket backed by an in-memory queue of frames
// instead of a real AF_PACKET socket, so state-machine and message-shape
// tests can run without CAP_NET_RAW.
type fakePacketSocket struct {
	fd     int
	closed bool
	inbox  [][]byte
	sent   []sentFrame
}

type sentFrame struct {
	payload []byte
	dstMAC  net.HardwareAddr
	srcIP   net.IP
	srcPort int
	dstPort int
}

func newFakePacketSocket(fd int) *fakePacketSocket {
	return &fakePacketSocket{fd: fd}
}

func (s *fakePacketSocket) Fd() int { return s.fd }

func (s *fakePacketSocket) Close() error {
	s.closed = true
	return nil
}

func (s *fakePacketSocket) SendBroadcast(payload []byte, dstMAC net.HardwareAddr, srcIP net.IP, srcPort, dstPort int) error {
	s.sent = append(s.sent, sentFrame{append([]byte{}, payload...), dstMAC, srcIP, srcPort, dstPort})
	return nil
}

func (s *fakePacketSocket) Recv(buf []byte) (int, []byte, error) {
	if len(s.inbox) == 0 {
		return 0, nil, errWouldBlock
	}
	next := s.inbox[0]
	s.inbox = s.inbox[1:]
	n := copy(buf, next)
	return n, buf[:n], nil
}

func (s *fakePacketSocket) deliver(payload []byte) {
	s.inbox = append(s.inbox, payload)
}

// fakeUDPSocket is the UDP analog of fakePacketSocket.
type fakeUDPSocket struct {
	fd        int
	closed    bool
	inbox     [][]byte
	unicasts  [][]byte
	broadcast [][]byte
}

func newFakeUDPSocket(fd int) *fakeUDPSocket {
	return &fakeUDPSocket{fd: fd}
}

func (s *fakeUDPSocket) Fd() int { return s.fd }

func (s *fakeUDPSocket) Close() error {
	s.closed = true
	return nil
}

func (s *fakeUDPSocket) SendUnicast(payload []byte) error {
	s.unicasts = append(s.unicasts, append([]byte{}, payload...))
	return nil
}

func (s *fakeUDPSocket) SendBroadcast(payload []byte, dstPort int) error {
	s.broadcast = append(s.broadcast, append([]byte{}, payload...))
	return nil
}

func (s *fakeUDPSocket) Recv(buf []byte) (int, error) {
	if len(s.inbox) == 0 {
		return 0, errWouldBlock
	}
	next := s.inbox[0]
	s.inbox = s.inbox[1:]
	n := copy(buf, next)
	return n, nil
}

func (s *fakeUDPSocket) deliver(payload []byte) {
	s.inbox = append(s.inbox, payload)
}

// newTestConnection wires a Connection to fake sockets instead of real ones,
// returning the fakes so a test can inject inbound traffic and inspect what
// was sent.
func newTestConnection(t interface{ Helper() }, htype dhcpv4.HardwareType, hlen byte, chaddr, bhaddr net.HardwareAddr, id []byte, requestBroadcast bool, mtu uint16) (*Connection, *fakeNotifier, *fakePacketSocket, *fakeUDPSocket) {
	t.Helper()
	notifier := newFakeNotifier()
	pfd := newFakePacketSocket(10)
	ufd := newFakeUDPSocket(11)

	c, err := New("eth0", htype, hlen, chaddr, bhaddr, id, requestBroadcast, mtu, notifier)
	if err != nil {
		panic(err)
	}
	c.openPacket = func(iface string, clientPort int) (packetSocket, error) { return pfd, nil }
	c.openUDP = func(client, server net.IP, clientPort, serverPort int) (udpSocket, error) { return ufd, nil }
	return c, notifier, pfd, ufd
}
