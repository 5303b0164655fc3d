package client

import (
	"fmt"

	"github.com/athena-dhcpd/dhcp4c/pkg/dhcpv4"
)

// sendLinkLayerBroadcast transmits msg over the raw packet socket as a
// link-layer broadcast addressed to c.bhaddr. Precondition: state PACKET
// exactly — once DRAINING begins the client is expected to reach the
// server over the connected UDP socket instead (§4.4).
func (c *Connection) sendLinkLayerBroadcast(msg *dhcpv4.OutgoingMessage) error {
	c.assertState(StatePacket)

	raw := msg.Raw()
	dstMAC := c.bhaddr
	srcIP := dhcpv4.ZeroIP
	if c.ciaddr != nil {
		srcIP = c.ciaddr
	}

	if err := c.pfd.SendBroadcast(raw, dstMAC, srcIP, dhcpv4.ClientPort, dhcpv4.ServerPort); err != nil {
		return fmt.Errorf("dhcp4c: sending link-layer broadcast: %w", err)
	}
	return nil
}

// sendUDPBroadcast transmits msg as a UDP broadcast over the connected
// socket. Precondition: state DRAINING or UDP (§4.4).
func (c *Connection) sendUDPBroadcast(msg *dhcpv4.OutgoingMessage) error {
	c.assertStateAtLeast(StateDraining)

	if err := c.ufd.SendBroadcast(msg.Raw(), dhcpv4.ServerPort); err != nil {
		return fmt.Errorf("dhcp4c: sending udp broadcast: %w", err)
	}
	return nil
}

// sendUnicast transmits msg to the server this socket is connected to.
// Precondition: state DRAINING or UDP (§4.4).
func (c *Connection) sendUnicast(msg *dhcpv4.OutgoingMessage) error {
	c.assertStateAtLeast(StateDraining)

	if err := c.ufd.SendUnicast(msg.Raw()); err != nil {
		return fmt.Errorf("dhcp4c: sending unicast: %w", err)
	}
	return nil
}
