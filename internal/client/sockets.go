package client

import "net"

// packetSocket and udpSocket are the minimal surfaces Connection needs from
// the two transport-layer collaborators (§6). They exist so tests can
// substitute in-memory fakes instead of real interface/CAP_NET_RAW
// sockets; transport.RawSocket and transport.UDPSocket satisfy these
// structurally without needing to import this package.
type packetSocket interface {
	Fd() int
	Close() error
	SendBroadcast(payload []byte, dstMAC net.HardwareAddr, srcIP net.IP, srcPort, dstPort int) error
	Recv(buf []byte) (int, []byte, error)
}

type udpSocket interface {
	Fd() int
	Close() error
	SendUnicast(payload []byte) error
	SendBroadcast(payload []byte, dstPort int) error
	Recv(buf []byte) (int, error)
}

// Notifier is the readiness-notification collaborator (§6), declared here
// so New accepts any value with these two methods, not only the
// internal/transport implementation.
type Notifier interface {
	Add(fd int, tag uint64) error
	Remove(fd int) error
}
