//go:build linux

package client

import (
	"net"

	"github.com/athena-dhcpd/dhcp4c/internal/transport"
	"golang.org/x/sys/unix"
)

func openPacketSocket(iface string, clientPort int) (packetSocket, error) {
	sock, err := transport.OpenRawSocket(iface, clientPort)
	if err != nil {
		return nil, err
	}
	return &rawSocketAdapter{sock}, nil
}

func openUDPSocket(client, server net.IP, clientPort, serverPort int) (udpSocket, error) {
	sock, err := transport.OpenUDPSocket(client, server, clientPort, serverPort)
	if err != nil {
		return nil, err
	}
	return &udpSocketAdapter{sock}, nil
}

// rawSocketAdapter and udpSocketAdapter translate the EAGAIN/EWOULDBLOCK
// errno the kernel returns on a non-blocking socket with nothing queued
// into this package's errWouldBlock sentinel, so connection.go never needs
// to know it is talking to a real syscall-backed socket.

type rawSocketAdapter struct {
	*transport.RawSocket
}

func (a *rawSocketAdapter) Recv(buf []byte) (int, []byte, error) {
	n, payload, err := a.RawSocket.Recv(buf)
	if isErrno(err, unix.EAGAIN, unix.EWOULDBLOCK) {
		return 0, nil, errWouldBlock
	}
	return n, payload, err
}

type udpSocketAdapter struct {
	*transport.UDPSocket
}

func (a *udpSocketAdapter) Recv(buf []byte) (int, error) {
	n, err := a.UDPSocket.Recv(buf)
	if isErrno(err, unix.EAGAIN, unix.EWOULDBLOCK) {
		return 0, errWouldBlock
	}
	return n, err
}

func isErrno(err error, codes ...unix.Errno) bool {
	errno, ok := err.(unix.Errno)
	if !ok {
		return false
	}
	for _, c := range codes {
		if errno == c {
			return true
		}
	}
	return false
}
