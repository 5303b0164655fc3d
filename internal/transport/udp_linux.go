//go:build linux

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// UDPSocket is a non-blocking UDP socket bound to the client port and
// connected to the server, used once the client holds a lease and the
// kernel's ordinary IP stack can route for it.
type UDPSocket struct {
	fd int
}

// OpenUDPSocket binds to (client, clientPort) and connects to
// (server, serverPort), with SO_REUSEADDR set so a restarted client can
// rebind promptly.
func OpenUDPSocket(client, server net.IP, clientPort, serverPort int) (*UDPSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: opening udp socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: setting SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: setting SO_BROADCAST: %w", err)
	}

	bindAddr := &unix.SockaddrInet4{Port: clientPort}
	copy(bindAddr.Addr[:], client.To4())
	if err := unix.Bind(fd, bindAddr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: binding udp socket to %s:%d: %w", client, clientPort, err)
	}

	connectAddr := &unix.SockaddrInet4{Port: serverPort}
	copy(connectAddr.Addr[:], server.To4())
	if err := unix.Connect(fd, connectAddr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connecting udp socket to %s:%d: %w", server, serverPort, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: setting non-blocking: %w", err)
	}

	return &UDPSocket{fd: fd}, nil
}

// Fd returns the underlying descriptor, for registration on a Notifier.
func (s *UDPSocket) Fd() int { return s.fd }

// Close releases the socket.
func (s *UDPSocket) Close() error {
	return unix.Close(s.fd)
}

// SendUnicast writes payload to the connected peer.
func (s *UDPSocket) SendUnicast(payload []byte) error {
	return unix.Send(s.fd, payload, 0)
}

// SendBroadcast writes payload to 255.255.255.255:dstPort, bypassing the
// connected-peer default destination.
func (s *UDPSocket) SendBroadcast(payload []byte, dstPort int) error {
	addr := &unix.SockaddrInet4{Port: dstPort}
	copy(addr.Addr[:], net.IPv4bcast.To4())
	return unix.Sendto(s.fd, payload, 0, addr)
}

// Recv reads one datagram. A zero-length read (n == 0, err == nil) means
// no message; EAGAIN/EWOULDBLOCK is returned as an error for the caller to
// classify.
func (s *UDPSocket) Recv(buf []byte) (int, error) {
	return unix.Read(s.fd, buf)
}
