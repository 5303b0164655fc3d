package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/athena-dhcpd/dhcp4c/internal/backoff"
	"github.com/athena-dhcpd/dhcp4c/internal/client"
	"github.com/athena-dhcpd/dhcp4c/internal/metrics"
	"github.com/athena-dhcpd/dhcp4c/internal/probe"
	"github.com/athena-dhcpd/dhcp4c/internal/transport"
	"github.com/athena-dhcpd/dhcp4c/pkg/dhcpv4"
)

// phase is the dispatcher's own lease-acquisition state, layered on top of
// (but distinct from) the Connection's socket-lifecycle State. The
// Connection only knows INIT/PACKET/DRAINING/UDP; everything about
// DISCOVER/OFFER/REQUEST/ACK belongs here, per §1 and §10.4.
type phase int

const (
	phaseDiscovering phase = iota
	phaseRebooting
	phaseRequesting
	phaseBound
	phaseRenewing
	phaseRebinding
)

func (p phase) String() string {
	switch p {
	case phaseDiscovering:
		return "discovering"
	case phaseRebooting:
		return "rebooting"
	case phaseRequesting:
		return "requesting"
	case phaseBound:
		return "bound"
	case phaseRenewing:
		return "renewing"
	case phaseRebinding:
		return "rebinding"
	default:
		return "unknown"
	}
}

// maxPollInterval bounds how long a single epoll_wait call may block, so
// the loop in run() periodically re-checks ctx.Done() even with nothing
// due to fire and nothing readable.
const maxPollInterval = 2 * time.Second

// dispatcher drives internal/client.Connection through a full lease
// lifecycle: DISCOVER/OFFER, REQUEST or REBOOT, ACK/NAK, and periodic
// RENEW/REBIND once bound, with exponential retransmission backoff between
// attempts. This is the "surrounding state machine" the core transport and
// message-factory spec explicitly treats as an external collaborator.
type dispatcher struct {
	conn     *client.Connection
	notifier *transport.Epoll
	logger   *slog.Logger

	initial time.Duration
	max     time.Duration
	bo      *backoff.Backoff

	prober       *probe.ARPProber
	probeTimeout time.Duration

	iface *net.Interface

	requestIP net.IP // set only for an INIT-REBOOT attempt (-request flag)

	phase     phase
	xid       uint32
	secsStart time.Time
	deadline  time.Time
	offered   lease
	current   lease
}

func newDispatcher(conn *client.Connection, notifier *transport.Epoll, iface *net.Interface, requestIP net.IP, initial, max time.Duration, prober *probe.ARPProber, probeTimeout time.Duration, logger *slog.Logger) *dispatcher {
	return &dispatcher{
		conn:         conn,
		notifier:     notifier,
		logger:       logger,
		initial:      initial,
		max:          max,
		bo:           backoff.New(initial, max),
		prober:       prober,
		probeTimeout: probeTimeout,
		iface:        iface,
		requestIP:    requestIP,
	}
}

// secs returns the elapsed time since the current acquisition attempt
// began, clamped to uint16 (RFC 2131 §4.4.1).
func (d *dispatcher) secs() uint16 {
	elapsed := time.Since(d.secsStart) / time.Second
	if elapsed <= 0 {
		return 1 // setXid rejects zero; the first transmission still counts as "1 second in"
	}
	if elapsed > 0xffff {
		return 0xffff
	}
	return uint16(elapsed)
}

// start opens the packet socket and transmits the first message of the
// acquisition attempt: REBOOT if a previously leased address was named on
// the command line, DISCOVER otherwise.
func (d *dispatcher) start() error {
	if err := d.conn.Listen(); err != nil {
		return err
	}
	metrics.StateTransitions.WithLabelValues(d.conn.State().String()).Inc()

	d.xid = newXID()
	d.secsStart = time.Now()
	d.bo.Reset()

	if d.requestIP != nil {
		d.phase = phaseRebooting
		d.logger.Info("sending DHCPREQUEST (INIT-REBOOT)", "xid", d.xid, "requested_ip", d.requestIP.String())
		if err := d.conn.Reboot(d.requestIP, d.xid, d.secs()); err != nil {
			return err
		}
		metrics.MessagesSent.WithLabelValues("reboot").Inc()
	} else {
		d.phase = phaseDiscovering
		d.logger.Info("sending DHCPDISCOVER", "xid", d.xid)
		if err := d.conn.Discover(d.xid, d.secs()); err != nil {
			return err
		}
		metrics.MessagesSent.WithLabelValues("discover").Inc()
	}

	d.deadline = time.Now().Add(d.bo.Next())
	return nil
}

// run is the dispatcher's single-threaded event loop: wait for readiness or
// the next scheduled deadline, drain whatever Dispatch has queued, then
// check whether the deadline passed. It returns when ctx is cancelled.
func (d *dispatcher) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		wait := time.Until(d.deadline)
		if wait <= 0 {
			// Epoll.Wait treats 0 as "block forever"; a deadline that is
			// already due needs a non-blocking poll instead.
			wait = time.Nanosecond
		}
		if wait > maxPollInterval {
			wait = maxPollInterval
		}

		tags, err := d.notifier.Wait(wait)
		if err != nil {
			d.logger.Error("epoll wait failed", "error", err)
			continue
		}
		if len(tags) > 0 {
			if err := d.drain(); err != nil {
				return err
			}
		}

		if !d.deadline.IsZero() && !time.Now().Before(d.deadline) {
			if err := d.onTimeout(); err != nil {
				return err
			}
		}
	}
}

// drain calls Dispatch until it reports nothing currently available,
// handling every message it hands back against the current phase.
func (d *dispatcher) drain() error {
	for {
		start := time.Now()
		msg, err := d.conn.Dispatch()
		metrics.DispatchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		metrics.MessagesReceived.WithLabelValues("accepted").Inc()
		d.handle(msg)
	}
}

func (d *dispatcher) handle(msg *dhcpv4.IncomingMessage) {
	if msg.Header().XID != d.xid {
		d.logger.Debug("dropping reply for a stale transaction", "xid", msg.Header().XID, "want", d.xid)
		return
	}
	mt := msg.MessageType()

	switch d.phase {
	case phaseDiscovering:
		if mt != dhcpv4.MessageTypeOffer {
			return
		}
		d.offered = extractLease(msg)
		d.logger.Info("received DHCPOFFER", "offered_ip", d.offered.clientIP.String(), "server", d.offered.serverID.String())
		d.phase = phaseRequesting
		d.bo.Reset()
		if err := d.conn.Select(d.offered.clientIP, d.offered.serverID, d.xid, d.secs()); err != nil {
			d.logger.Error("sending DHCPREQUEST (select)", "error", err)
			return
		}
		metrics.MessagesSent.WithLabelValues("select").Inc()
		d.deadline = time.Now().Add(d.bo.Next())

	case phaseRebooting, phaseRequesting:
		switch mt {
		case dhcpv4.MessageTypeAck:
			d.acceptAck(msg)
		case dhcpv4.MessageTypeNak:
			d.logger.Warn("received DHCPNAK, restarting with DHCPDISCOVER")
			d.restartDiscovery()
		}

	case phaseRenewing, phaseRebinding:
		switch mt {
		case dhcpv4.MessageTypeAck:
			d.acceptAck(msg)
		case dhcpv4.MessageTypeNak:
			d.logger.Warn("received DHCPNAK while renewing, giving up the lease and restarting")
			d.conn.Close()
			d.restartDiscovery()
		}

	case phaseBound:
		// The Connection is not expected to register new readiness events
		// while bound and not mid-renewal; anything delivered here is
		// stray and ignored.
	}
}

// restartDiscovery reopens the packet socket (if needed) and begins a
// fresh acquisition attempt from scratch, abandoning any offer in hand.
func (d *dispatcher) restartDiscovery() {
	if d.conn.State() != client.StateInit {
		d.conn.Close()
	}
	if err := d.start(); err != nil {
		d.logger.Error("failed to restart acquisition", "error", err)
	}
}

// acceptAck binds (or rebinds) the lease described by an ACK: connecting
// the UDP socket on first bind, recording the lease, scheduling T1/T2, and
// running an optional duplicate-address probe on first bind only.
func (d *dispatcher) acceptAck(msg *dhcpv4.IncomingMessage) {
	l := extractLease(msg)
	l.obtainedAt = time.Now()
	firstBind := d.conn.State() == client.StatePacket

	if firstBind {
		if err := d.conn.Connect(l.clientIP, l.serverID); err != nil {
			d.logger.Error("connecting UDP socket after DHCPACK", "error", err)
			return
		}
		metrics.StateTransitions.WithLabelValues(d.conn.State().String()).Inc()
	}

	d.current = l
	d.phase = phaseBound
	d.deadline = l.renewAt()
	metrics.LeaseState.Reset()
	metrics.LeaseState.WithLabelValues(d.conn.State().String()).Set(1)

	d.logger.Info("lease bound",
		"ip", l.clientIP.String(),
		"server", l.serverID.String(),
		"lease_time", l.leaseTime.String(),
		"t1", l.t1.String(),
		"t2", l.t2.String())

	if firstBind && d.prober != nil {
		go d.probeAndAnnounce(l.clientIP)
	}
}

// probeAndAnnounce runs a best-effort duplicate-address check after
// binding and, regardless of outcome, announces the address with a
// gratuitous ARP. It never blocks the dispatch loop: this module's ARP
// probing and announcement are explicitly out of the Connection's scope
// (§1, §10.4), so they run on their own goroutine against the prober's own
// socket rather than the Connection's descriptors.
func (d *dispatcher) probeAndAnnounce(assigned net.IP) {
	ctx, cancel := context.WithTimeout(context.Background(), d.probeTimeout)
	defer cancel()

	conflict, responder, err := d.prober.Probe(ctx, assigned)
	switch {
	case err != nil:
		metrics.ConflictProbes.WithLabelValues("arp", "error").Inc()
		d.logger.Warn("ARP duplicate-address probe failed", "error", err)
	case conflict:
		metrics.ConflictProbes.WithLabelValues("arp", "conflict").Inc()
		d.logger.Error("address conflict detected after binding", "ip", assigned.String(), "responder_mac", responder)
	default:
		metrics.ConflictProbes.WithLabelValues("arp", "clear").Inc()
	}

	if d.iface == nil || d.iface.HardwareAddr == nil {
		return
	}
	if err := probe.SendGratuitousARP(d.prober, d.iface.HardwareAddr, assigned, d.logger); err != nil {
		d.logger.Warn("sending gratuitous ARP failed", "error", err)
	}
}

// onTimeout fires when the scheduled deadline passes with nothing handled
// in between: either a retransmit of the current phase's message, or an
// escalation (bound -> renewing -> rebinding -> restart).
func (d *dispatcher) onTimeout() error {
	switch d.phase {
	case phaseDiscovering:
		metrics.RetransmitAttempts.WithLabelValues("discover").Inc()
		d.logger.Debug("retransmitting DHCPDISCOVER", "attempt", d.bo.Attempt())
		if err := d.conn.Discover(d.xid, d.secs()); err != nil {
			return err
		}
		d.deadline = time.Now().Add(d.bo.Next())

	case phaseRebooting:
		metrics.RetransmitAttempts.WithLabelValues("reboot").Inc()
		if err := d.conn.Reboot(d.requestIP, d.xid, d.secs()); err != nil {
			return err
		}
		d.deadline = time.Now().Add(d.bo.Next())

	case phaseRequesting:
		metrics.RetransmitAttempts.WithLabelValues("select").Inc()
		if err := d.conn.Select(d.offered.clientIP, d.offered.serverID, d.xid, d.secs()); err != nil {
			return err
		}
		d.deadline = time.Now().Add(d.bo.Next())

	case phaseBound:
		d.beginRenew()

	case phaseRenewing:
		if time.Now().After(d.current.rebindAt()) {
			d.beginRebind()
			break
		}
		metrics.RetransmitAttempts.WithLabelValues("renew").Inc()
		if err := d.conn.Renew(d.xid, d.secs()); err != nil {
			return err
		}
		d.deadline = time.Now().Add(d.bo.Next())

	case phaseRebinding:
		if time.Now().After(d.current.expiresAt()) {
			d.logger.Warn("lease expired without renewal, restarting from DHCPDISCOVER")
			d.conn.Close()
			return d.start()
		}
		metrics.RetransmitAttempts.WithLabelValues("rebind").Inc()
		if err := d.conn.Rebind(d.xid, d.secs()); err != nil {
			return err
		}
		d.deadline = time.Now().Add(d.bo.Next())
	}
	return nil
}

func (d *dispatcher) beginRenew() {
	d.phase = phaseRenewing
	d.xid = newXID()
	d.secsStart = time.Now()
	d.bo.Reset()
	d.logger.Info("T1 expired, sending DHCPREQUEST (renew)", "xid", d.xid)
	if err := d.conn.Renew(d.xid, d.secs()); err != nil {
		d.logger.Error("sending renew", "error", err)
	}
	metrics.MessagesSent.WithLabelValues("renew").Inc()
	d.deadline = time.Now().Add(d.bo.Next())
}

func (d *dispatcher) beginRebind() {
	d.phase = phaseRebinding
	d.xid = newXID()
	d.secsStart = time.Now()
	d.bo.Reset()
	d.logger.Warn("T2 expired, sending DHCPREQUEST (rebind)", "xid", d.xid)
	if err := d.conn.Rebind(d.xid, d.secs()); err != nil {
		d.logger.Error("sending rebind", "error", err)
	}
	metrics.MessagesSent.WithLabelValues("rebind").Inc()
	d.deadline = time.Now().Add(d.bo.Next())
}

// release gives up the held lease, if any, by unicasting a DHCPRELEASE.
// Safe to call regardless of phase; it is a no-op unless the connection
// has actually reached state UDP.
func (d *dispatcher) release() {
	if d.conn.State() != client.StateUDP {
		return
	}
	d.logger.Info("releasing lease", "ip", d.current.clientIP.String())
	if err := d.conn.Release(newXID(), ""); err != nil {
		d.logger.Warn("sending DHCPRELEASE failed", "error", err)
		return
	}
	metrics.MessagesSent.WithLabelValues("release").Inc()
}
