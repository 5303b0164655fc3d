package main

import (
	"net"
	"time"

	"github.com/athena-dhcpd/dhcp4c/pkg/dhcpv4"
)

// lease holds everything the dispatcher remembers about the address it is
// currently holding or in the process of acquiring. It is the dispatcher's
// own bookkeeping, not something internal/client knows about (§1: "lease
// accounting ... out of scope").
type lease struct {
	clientIP   net.IP
	serverID   net.IP
	subnetMask net.IP
	routers    []net.IP
	dns        []net.IP

	leaseTime time.Duration
	t1        time.Duration
	t2        time.Duration

	obtainedAt time.Time
}

// extractLease reads the fields the dispatcher cares about out of an OFFER
// or ACK. Missing optional fields are left zero; a missing lease time
// defaults to an hour, matching common server behavior for a field RFC
// 2131 §4.3.1 calls mandatory but real implementations sometimes omit for
// an INFORM-style exchange.
func extractLease(msg *dhcpv4.IncomingMessage) lease {
	l := lease{
		clientIP: msg.Header().YIAddr,
		serverID: msg.ServerIdentifier(),
	}

	if v, ok := msg.Query(dhcpv4.OptionSubnetMask); ok && len(v) == 4 {
		l.subnetMask = net.IP(v)
	}
	if v, ok := msg.Query(dhcpv4.OptionRouter); ok {
		ips, err := dhcpv4.BytesToIPList(v)
		if err == nil {
			l.routers = ips
		}
	}
	if v, ok := msg.Query(dhcpv4.OptionDomainNameServer); ok {
		ips, err := dhcpv4.BytesToIPList(v)
		if err == nil {
			l.dns = ips
		}
	}

	l.leaseTime = 1 * time.Hour
	if v, ok := msg.Query(dhcpv4.OptionIPLeaseTime); ok {
		if secs, err := dhcpv4.BytesToUint32(v); err == nil {
			l.leaseTime = time.Duration(secs) * time.Second
		}
	}

	l.t1 = durationOrDefault(msg, dhcpv4.OptionRenewalTime, l.leaseTime/2)
	l.t2 = durationOrDefault(msg, dhcpv4.OptionRebindingTime, (l.leaseTime*7)/8)

	return l
}

func durationOrDefault(msg *dhcpv4.IncomingMessage, code dhcpv4.OptionCode, fallback time.Duration) time.Duration {
	v, ok := msg.Query(code)
	if !ok {
		return fallback
	}
	secs, err := dhcpv4.BytesToUint32(v)
	if err != nil {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// renewAt / rebindAt / expiresAt are wall-clock deadlines derived from when
// the lease was obtained plus its T1/T2/lease-time offsets (RFC 2131 §4.4).
func (l lease) renewAt() time.Time   { return l.obtainedAt.Add(l.t1) }
func (l lease) rebindAt() time.Time  { return l.obtainedAt.Add(l.t2) }
func (l lease) expiresAt() time.Time { return l.obtainedAt.Add(l.leaseTime) }
