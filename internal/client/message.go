package client

import (
	"net"

	"github.com/athena-dhcpd/dhcp4c/pkg/dhcpv4"
)

// newMessage builds the common BOOTREQUEST header and options shared by
// every phase operation (§4.3).
func (c *Connection) newMessage(msgType dhcpv4.MessageType) *dhcpv4.OutgoingMessage {
	msg := dhcpv4.NewOutgoingMessage(dhcpv4.OverloadFile | dhcpv4.OverloadSname)

	h := msg.HeaderMut()
	h.Op = dhcpv4.OpBootRequest
	h.HType = c.htype
	h.YIAddr = net.IPv4zero
	h.SIAddr = net.IPv4zero
	h.GIAddr = net.IPv4zero
	if c.ciaddr != nil {
		h.CIAddr = c.ciaddr
	} else {
		h.CIAddr = net.IPv4zero
	}
	if c.requestBroadcast {
		h.Flags |= dhcpv4.FlagBroadcast
	}
	if c.sendCHAddr {
		h.HLen = c.hlen
		h.CHAddr = c.chaddr
	}

	msg.Append(dhcpv4.OptionDHCPMessageType, []byte{byte(msgType)})
	if c.idlen > 0 {
		msg.Append(dhcpv4.OptionClientIdentifier, c.id)
	}

	if msgType == dhcpv4.MessageTypeDiscover || msgType == dhcpv4.MessageTypeRequest || msgType == dhcpv4.MessageTypeInform {
		switch c.state {
		case StateInit, StatePacket:
			if c.mtu > 0 {
				msg.Append(dhcpv4.OptionMaxDHCPMessageSize, dhcpv4.Uint16ToBytes(c.mtu))
			}
		case StateDraining, StateUDP:
			msg.Append(dhcpv4.OptionMaxDHCPMessageSize, dhcpv4.Uint16ToBytes(dhcpv4.UDPMaxSize))
		}
	}

	return msg
}

// setXid writes the transaction id and elapsed-seconds fields. secs must
// be non-zero: some servers reject a zero value outright (§4.3).
func setXid(msg *dhcpv4.OutgoingMessage, xid uint32, secs uint16) {
	if secs == 0 {
		panic(ContractViolation{Msg: "secs must be non-zero"})
	}
	h := msg.HeaderMut()
	h.XID = xid
	h.Secs = secs
}

// errorMessageOption builds the NUL-terminated ERROR_MESSAGE option value
// DECLINE and RELEASE may carry (§4.3).
func errorMessageOption(msg string) []byte {
	b := make([]byte, len(msg)+1)
	copy(b, msg)
	return b
}

// Discover sends a DHCPDISCOVER as a link-layer broadcast.
func (c *Connection) Discover(xid uint32, secs uint16) error {
	msg := c.newMessage(dhcpv4.MessageTypeDiscover)
	setXid(msg, xid, secs)
	return c.sendLinkLayerBroadcast(msg)
}

// Select sends a DHCPREQUEST naming the offered client address and
// selected server, as a link-layer broadcast (the client has no usable
// address yet, so it cannot unicast).
func (c *Connection) Select(clientIP, serverIP net.IP, xid uint32, secs uint16) error {
	msg := c.newMessage(dhcpv4.MessageTypeRequest)
	setXid(msg, xid, secs)
	msg.Append(dhcpv4.OptionRequestedIP, dhcpv4.IPToBytes(clientIP))
	msg.Append(dhcpv4.OptionServerIdentifier, dhcpv4.IPToBytes(serverIP))
	return c.sendLinkLayerBroadcast(msg)
}

// Reboot sends a DHCPREQUEST re-claiming a previously leased address
// (INIT-REBOOT), as a link-layer broadcast.
func (c *Connection) Reboot(clientIP net.IP, xid uint32, secs uint16) error {
	msg := c.newMessage(dhcpv4.MessageTypeRequest)
	setXid(msg, xid, secs)
	msg.Append(dhcpv4.OptionRequestedIP, dhcpv4.IPToBytes(clientIP))
	return c.sendLinkLayerBroadcast(msg)
}

// Renew sends a DHCPREQUEST to the bound server over the connected UDP
// socket, carrying ciaddr and no REQUESTED_IP/SERVER_IDENTIFIER.
func (c *Connection) Renew(xid uint32, secs uint16) error {
	msg := c.newMessage(dhcpv4.MessageTypeRequest)
	setXid(msg, xid, secs)
	return c.sendUnicast(msg)
}

// Rebind sends a DHCPREQUEST as a UDP broadcast when the bound server is
// unreachable, carrying ciaddr and no SERVER_IDENTIFIER.
func (c *Connection) Rebind(xid uint32, secs uint16) error {
	msg := c.newMessage(dhcpv4.MessageTypeRequest)
	setXid(msg, xid, secs)
	return c.sendUDPBroadcast(msg)
}

// Inform sends a DHCPINFORM as a UDP broadcast to request local
// configuration for an address obtained by other means.
func (c *Connection) Inform(xid uint32, secs uint16) error {
	msg := c.newMessage(dhcpv4.MessageTypeInform)
	setXid(msg, xid, secs)
	return c.sendUDPBroadcast(msg)
}

// Decline sends a DHCPDECLINE for an address found to be already in use,
// as a link-layer broadcast. errMsg may be empty.
func (c *Connection) Decline(clientIP, serverIP net.IP, errMsg string, xid uint32, secs uint16) error {
	msg := c.newMessage(dhcpv4.MessageTypeDecline)
	setXid(msg, xid, secs)
	msg.Append(dhcpv4.OptionRequestedIP, dhcpv4.IPToBytes(clientIP))
	msg.Append(dhcpv4.OptionServerIdentifier, dhcpv4.IPToBytes(serverIP))
	if errMsg != "" {
		msg.Append(dhcpv4.OptionErrorMessage, errorMessageOption(errMsg))
	}
	return c.sendLinkLayerBroadcast(msg)
}

// Release gives up the held lease, unicast to the server that granted it.
// RFC 2131 §4.3.2 does not tie a RELEASE to a retransmission sequence, so
// unlike every other phase this one does not take or validate secs.
func (c *Connection) Release(xid uint32, errMsg string) error {
	msg := c.newMessage(dhcpv4.MessageTypeRelease)
	msg.HeaderMut().XID = xid
	msg.Append(dhcpv4.OptionServerIdentifier, dhcpv4.IPToBytes(c.siaddr))
	if errMsg != "" {
		msg.Append(dhcpv4.OptionErrorMessage, errorMessageOption(errMsg))
	}
	return c.sendUnicast(msg)
}
