//go:build linux

package probe

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// rawARPSocket is an AF_PACKET/SOCK_RAW socket bound to one interface,
// admitting ARP frames only.
type rawARPSocket struct {
	fd      int
	ifindex int
}

func openARPSocket(iface *net.Interface) (arpSocket, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ARP)))
	if err != nil {
		return nil, fmt.Errorf("probe: opening ARP socket: %w", err)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ARP),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("probe: binding ARP socket to %s: %w", iface.Name, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("probe: setting ARP socket non-blocking: %w", err)
	}

	return &rawARPSocket{fd: fd, ifindex: iface.Index}, nil
}

func (s *rawARPSocket) Send(frame []byte) error {
	_, err := unix.Write(s.fd, frame)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return &net.OpError{Op: "write", Err: fmt.Errorf("would block")}
	}
	return err
}

func (s *rawARPSocket) Recv(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, timeoutError{}
	}
	return n, err
}

func (s *rawARPSocket) Close() error {
	return unix.Close(s.fd)
}

// timeoutError satisfies net.Error so ARPProber.Probe's isTemporary check
// treats "nothing queued yet" as a reason to keep polling rather than a
// fatal read error.
type timeoutError struct{}

func (timeoutError) Error() string   { return "probe: no ARP reply queued" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func htons(v uint16) uint16 {
	return (v&0xff)<<8 | v>>8
}
