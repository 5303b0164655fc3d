//go:build linux

package transport

import (
	"fmt"
	"net"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// RawSocket is a non-blocking AF_PACKET/SOCK_RAW socket bound to one
// interface, filtered by a kernel BPF program so only UDP datagrams
// destined for the DHCP client port are ever delivered to userspace. It is
// the link-layer collaborator the connection uses before it has an IP
// address: the kernel cannot route anything to an unconfigured interface.
type RawSocket struct {
	fd      int
	Ifindex int
	SrcMAC  net.HardwareAddr
}

// OpenRawSocket opens and configures a raw packet socket on ifaceName,
// admitting only inbound UDP datagrams addressed to clientPort.
func OpenRawSocket(ifaceName string, clientPort int) (*RawSocket, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("transport: looking up interface %s: %w", ifaceName, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_IP)))
	if err != nil {
		return nil, fmt.Errorf("transport: opening packet socket: %w", err)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IP),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: binding packet socket to %s: %w", ifaceName, err)
	}

	filter, err := dhcpClientFilter(clientPort)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: assembling BPF filter: %w", err)
	}
	if err := attachFilter(fd, filter); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: attaching BPF filter: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: setting non-blocking: %w", err)
	}

	return &RawSocket{fd: fd, Ifindex: iface.Index, SrcMAC: iface.HardwareAddr}, nil
}

// Fd returns the underlying descriptor, for registration on a Notifier.
func (s *RawSocket) Fd() int { return s.fd }

// Close releases the socket.
func (s *RawSocket) Close() error {
	return unix.Close(s.fd)
}

// SendBroadcast builds a full Ethernet+IPv4+UDP frame carrying payload and
// writes it out the bound interface, addressed to dstMAC/255.255.255.255.
func (s *RawSocket) SendBroadcast(payload []byte, dstMAC net.HardwareAddr, srcIP net.IP, srcPort, dstPort int) error {
	frame := encodeFrame(s.SrcMAC, dstMAC, srcIP, net.IPv4bcast, srcPort, dstPort, payload)
	_, err := unix.Write(s.fd, frame)
	return err
}

// Recv reads one raw frame and returns its UDP payload. EAGAIN/EWOULDBLOCK
// is returned verbatim when nothing is queued; the caller translates that
// into "no message" per its dispatch contract. A frame the BPF filter let
// through but that still isn't a well-formed UDP/IPv4 frame is reported as
// a nil payload with no error, since it is link-layer noise rather than a
// DHCP message worth surfacing a read error for.
func (s *RawSocket) Recv(buf []byte) (int, []byte, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, nil
	}
	payload, err := decodeFrame(buf[:n])
	if err != nil {
		return n, nil, nil
	}
	return n, payload, nil
}

// dhcpClientFilter assembles a BPF program equivalent to "udp dst port
// clientPort" evaluated against a raw Ethernet frame (i.e. with the
// Ethernet header still attached, unlike a BPF filter on an already-IP
// socket). It assumes IPv4 headers carry no options, which holds for every
// DHCP implementation this client talks to.
func dhcpClientFilter(clientPort int) ([]bpf.RawInstruction, error) {
	const (
		ethTypeOff  = 12
		ipProtoOff  = ethernetHeader + 9
		udpDPortOff = ethernetHeader + ipv4Header + 2
	)
	return bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: ethTypeOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 5},
		bpf.LoadAbsolute{Off: ipProtoOff, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: ipProtoUDP, SkipFalse: 3},
		bpf.LoadAbsolute{Off: udpDPortOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(clientPort), SkipFalse: 1},
		bpf.RetConstant{Val: 1500},
		bpf.RetConstant{Val: 0},
	})
}

// attachFilter installs a classic BPF program on fd via SO_ATTACH_FILTER.
// bpf.RawInstruction and unix.SockFilter share the exact same memory
// layout (16-bit op, two 8-bit jump offsets, 32-bit operand), so the
// conversion below is safe.
func attachFilter(fd int, filter []bpf.RawInstruction) error {
	program := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&filter[0])),
	}
	return unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &program)
}
