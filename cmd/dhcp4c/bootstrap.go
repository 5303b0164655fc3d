package main

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/athena-dhcpd/dhcp4c/internal/client"
	"github.com/athena-dhcpd/dhcp4c/internal/config"
	"github.com/athena-dhcpd/dhcp4c/internal/probe"
	"github.com/athena-dhcpd/dhcp4c/internal/transport"
	"github.com/athena-dhcpd/dhcp4c/pkg/dhcpv4"
)

// probeTimeout bounds how long the post-bind duplicate-address check waits
// for an ARP reply before declaring the address clear.
const probeTimeout = 1 * time.Second

// buildDispatcher resolves the configured interface, opens the epoll
// notifier, constructs the Connection, and (best-effort) the ARP prober,
// returning a dispatcher ready for start()/run(). It sends nothing.
func buildDispatcher(cfg *config.Config, requestFlag string, logger *slog.Logger) (*dispatcher, error) {
	iface, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", cfg.Interface, err)
	}
	if len(iface.HardwareAddr) == 0 {
		return nil, fmt.Errorf("interface %s has no hardware address", cfg.Interface)
	}

	var requestIP net.IP
	if requestFlag != "" {
		requestIP = net.ParseIP(requestFlag).To4()
		if requestIP == nil {
			return nil, fmt.Errorf("-request %q is not a valid IPv4 address", requestFlag)
		}
	} else if cfg.RequestedIP != "" {
		requestIP = net.ParseIP(cfg.RequestedIP).To4()
	}

	clientID, err := cfg.ClientIdentifier()
	if err != nil {
		return nil, fmt.Errorf("decoding client identifier: %w", err)
	}

	notifier, err := transport.NewEpoll()
	if err != nil {
		return nil, fmt.Errorf("creating epoll notifier: %w", err)
	}

	chaddr := iface.HardwareAddr
	htype, hlen, bhaddr, err := linkParams(cfg.LinkType, chaddr)
	if err != nil {
		notifier.Close()
		return nil, fmt.Errorf("interface %s: %w", cfg.Interface, err)
	}

	conn, err := client.New(cfg.Interface, htype, hlen, chaddr, bhaddr, clientID, cfg.Broadcast, uint16(cfg.MTU), notifier)
	if err != nil {
		notifier.Close()
		return nil, fmt.Errorf("constructing connection: %w", err)
	}

	initial, max, err := cfg.BackoffBounds()
	if err != nil {
		notifier.Close()
		return nil, fmt.Errorf("parsing backoff bounds: %w", err)
	}

	prober, err := probe.NewARPProber(cfg.Interface, logger)
	if err != nil {
		logger.Warn("duplicate-address probing disabled", "error", err)
		prober = nil
	}

	d := newDispatcher(conn, notifier, iface, requestIP, initial, max, prober, probeTimeout, logger)
	return d, nil
}

// linkParams derives the htype, hlen, and bhaddr a Connection needs from the
// configured link type and the interface's real hardware address. On
// Ethernet, hlen/bhaddr match the 6-byte MAC exactly. On InfiniBand,
// connection.New's hlen<=16 bound (the BOOTP chaddr field is a fixed
// 16-octet wire slot; RFC 2131) cannot hold a 20-byte IPoIB hardware
// address, but that does not matter: htype InfiniBand already forces
// send_chaddr=false, so hlen/chaddr are never written to the wire and hlen
// is passed as 0. bhaddr, which is sized to the link and used only for
// framing the outgoing broadcast frame, is still built at the interface's
// real hardware-address length, all-ones, matching RFC 4390/IPoIB
// broadcast.
func linkParams(linkType string, chaddr net.HardwareAddr) (htype dhcpv4.HardwareType, hlen byte, bhaddr net.HardwareAddr, err error) {
	bhaddr = make(net.HardwareAddr, len(chaddr))
	for i := range bhaddr {
		bhaddr[i] = 0xff
	}

	switch linkType {
	case config.LinkTypeInfiniBand:
		return dhcpv4.HTypeInfiniBand, 0, bhaddr, nil
	case config.LinkTypeEthernet:
		if len(chaddr) > int(dhcpv4.MaxCHAddrLen) {
			return 0, 0, nil, fmt.Errorf("hardware address longer than %d bytes", dhcpv4.MaxCHAddrLen)
		}
		return dhcpv4.HTypeEthernet, byte(len(chaddr)), bhaddr, nil
	default:
		return 0, 0, nil, fmt.Errorf("unsupported link_type %q", linkType)
	}
}
