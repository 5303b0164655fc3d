// Package probe implements optional post-assignment duplicate-address
// checks a dispatcher may run before or after accepting a lease: an ARP
// probe for the local subnet (RFC 5227-style, though this module only
// probes, it does not defend) and an ICMP probe as a fallback across
// relayed subnets ARP cannot reach.
package probe

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// arpSocket is the minimal transport ARPProber needs, so tests can
// substitute a fake instead of a real AF_PACKET socket.
type arpSocket interface {
	Send(frame []byte) error
	Recv(buf []byte) (int, error)
	Close() error
}

// ARPProber sends ARP requests and listens for replies to detect IP
// conflicts on the local subnet (RFC 826). The raw socket is opened once
// at startup and shared across all probes.
type ARPProber struct {
	iface  *net.Interface
	srcIP  net.IP
	srcMAC net.HardwareAddr
	logger *slog.Logger

	sock      arpSocket
	available bool
	mu        sync.Mutex

	openSocket func(iface *net.Interface) (arpSocket, error)
}

// NewARPProber creates a new ARP prober bound to the given interface. If
// raw socket creation fails (missing CAP_NET_RAW), it logs a loud warning
// and returns a prober that always reports "clear" — probing is a safety
// enhancement, not a precondition for handing out a lease.
func NewARPProber(ifaceName string, logger *slog.Logger) (*ARPProber, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("probe: looking up interface %s: %w", ifaceName, err)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("probe: getting addresses for %s: %w", ifaceName, err)
	}
	var srcIP net.IP
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok {
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				srcIP = ip4
				break
			}
		}
	}
	if srcIP == nil {
		return nil, fmt.Errorf("probe: no IPv4 address on interface %s", ifaceName)
	}

	p := &ARPProber{
		iface:      iface,
		srcIP:      srcIP,
		srcMAC:     iface.HardwareAddr,
		logger:     logger,
		openSocket: openARPSocket,
	}

	sock, err := p.openSocket(iface)
	if err != nil {
		logger.Error("failed to open raw ARP socket, duplicate-address detection via ARP is disabled",
			"interface", ifaceName,
			"error", err,
			"hint", "grant CAP_NET_RAW or run as root")
		p.available = false
		return p, nil
	}

	p.sock = sock
	p.available = true
	logger.Info("ARP prober initialized",
		"interface", ifaceName,
		"src_ip", srcIP.String(),
		"src_mac", iface.HardwareAddr.String())

	return p, nil
}

// Available returns true if the ARP prober has a working raw socket.
func (p *ARPProber) Available() bool {
	return p.available
}

// Close releases the raw socket.
func (p *ARPProber) Close() error {
	if p.sock != nil {
		return p.sock.Close()
	}
	return nil
}

// Probe sends an ARP request for targetIP and waits for a reply until ctx
// is done. It returns true if a reply arrives (conflict detected).
func (p *ARPProber) Probe(ctx context.Context, targetIP net.IP) (bool, string, error) {
	if !p.available {
		return false, "", nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	defer func() {
		p.logger.Debug("ARP probe completed",
			"target_ip", targetIP.String(),
			"duration", time.Since(start).String())
	}()

	req := buildARPRequest(p.srcMAC, p.srcIP, targetIP)
	if err := p.sock.Send(req); err != nil {
		return false, "", fmt.Errorf("probe: sending ARP request: %w", err)
	}

	buf := make([]byte, 128)
	for {
		select {
		case <-ctx.Done():
			return false, "", nil
		default:
		}

		n, err := p.sock.Recv(buf)
		if err != nil {
			if isTemporary(err) {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return false, "", fmt.Errorf("probe: reading ARP reply: %w", err)
		}
		senderMAC, senderIP, ok := parseARPReply(buf[:n])
		if !ok || !senderIP.Equal(targetIP) {
			continue
		}
		return true, senderMAC.String(), nil
	}
}

func isTemporary(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// buildARPRequest creates an ARP request packet per RFC 826, framed in a
// broadcast Ethernet header.
func buildARPRequest(srcMAC net.HardwareAddr, srcIP, targetIP net.IP) []byte {
	pkt := make([]byte, 42) // 14 (eth) + 28 (arp)

	copy(pkt[0:6], broadcastMAC)
	copy(pkt[6:12], srcMAC)
	binary.BigEndian.PutUint16(pkt[12:14], etherTypeARP)

	binary.BigEndian.PutUint16(pkt[14:16], 0x0001) // hardware type: Ethernet
	binary.BigEndian.PutUint16(pkt[16:18], 0x0800) // protocol type: IPv4
	pkt[18] = 6                                     // hardware addr length
	pkt[19] = 4                                     // protocol addr length
	binary.BigEndian.PutUint16(pkt[20:22], 0x0001)  // operation: request

	copy(pkt[22:28], srcMAC)
	copy(pkt[28:32], srcIP.To4())
	// target hardware address left zeroed
	copy(pkt[38:42], targetIP.To4())

	return pkt
}

// parseARPReply extracts the sender hardware and protocol addresses from
// an Ethernet-framed ARP packet, returning ok=false for anything that
// isn't an ARP reply.
func parseARPReply(frame []byte) (net.HardwareAddr, net.IP, bool) {
	if len(frame) < 42 {
		return nil, nil, false
	}
	if binary.BigEndian.Uint16(frame[12:14]) != etherTypeARP {
		return nil, nil, false
	}
	if binary.BigEndian.Uint16(frame[20:22]) != 0x0002 { // operation: reply
		return nil, nil, false
	}
	senderMAC := net.HardwareAddr(frame[22:28])
	senderIP := net.IP(frame[28:32])
	return senderMAC, senderIP, true
}

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

const etherTypeARP = 0x0806
