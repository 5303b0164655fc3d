package probe

import (
	"encoding/binary"
	"log/slog"
	"net"
)

// SendGratuitousARP announces a newly assigned address to the local
// segment so other hosts' ARP caches pick it up immediately, rather than
// waiting to time out a stale entry. It is a courtesy, not a defense: this
// module never contests an address once assigned.
func SendGratuitousARP(prober *ARPProber, clientMAC net.HardwareAddr, assignedIP net.IP, logger *slog.Logger) error {
	if prober == nil || !prober.Available() {
		return nil
	}

	pkt := buildGratuitousARP(clientMAC, assignedIP)
	logger.Debug("sending gratuitous ARP",
		"client_mac", clientMAC.String(),
		"assigned_ip", assignedIP.String())

	return prober.sock.Send(pkt)
}

// buildGratuitousARP builds a gratuitous ARP packet: sender and target
// protocol addresses both equal assignedIP, broadcast to the segment.
func buildGratuitousARP(clientMAC net.HardwareAddr, assignedIP net.IP) []byte {
	pkt := make([]byte, 42) // 14 (eth) + 28 (arp)

	copy(pkt[0:6], broadcastMAC)
	copy(pkt[6:12], clientMAC)
	binary.BigEndian.PutUint16(pkt[12:14], etherTypeARP)

	binary.BigEndian.PutUint16(pkt[14:16], 0x0001) // hardware type: Ethernet
	binary.BigEndian.PutUint16(pkt[16:18], 0x0800) // protocol type: IPv4
	pkt[18] = 6
	pkt[19] = 4
	binary.BigEndian.PutUint16(pkt[20:22], 0x0001) // operation: request

	copy(pkt[22:28], clientMAC)
	copy(pkt[28:32], assignedIP.To4())
	copy(pkt[32:38], broadcastMAC)
	copy(pkt[38:42], assignedIP.To4())

	return pkt
}
