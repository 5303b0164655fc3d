// Package client implements the DHCPv4 client connection: the state
// machine over a raw packet socket and a UDP socket described in this
// module's design (§2-§5), plus the message builder in message.go and the
// send primitives in send.go. It knows nothing about retransmission,
// backoff, lease accounting, or address probing — those are the
// surrounding dispatcher's job (cmd/dhcp4c).
package client

import (
	"bytes"
	"errors"
	"fmt"
	"net"

	"github.com/athena-dhcpd/dhcp4c/pkg/dhcpv4"
)

// State is one of the four states a Connection moves through as it
// acquires and then holds a lease.
type State int

const (
	StateInit State = iota
	StatePacket
	StateDraining
	StateUDP
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePacket:
		return "PACKET"
	case StateDraining:
		return "DRAINING"
	case StateUDP:
		return "UDP"
	default:
		return "UNKNOWN"
	}
}

// ContractViolation is panicked when a caller invokes an operation from a
// state that forbids it (§7: "fatal — abort the process or surface a
// panic-class failure").
type ContractViolation struct {
	Msg string
}

func (e ContractViolation) Error() string { return "dhcp4c: contract violation: " + e.Msg }

// ErrInvalid is returned by New when the caller-supplied identity is
// malformed (§4.1).
var ErrInvalid = errors.New("dhcp4c: invalid connection parameters")

// readinessTag is the single opaque tag this connection registers both of its
// descriptors under (§6): demultiplexing between pfd and ufd is by state,
// not by tag.
const readinessTag = 1

// Connection is the state machine described in §3. It is not safe for
// concurrent use — it is owned by exactly one logical task (§5).
type Connection struct {
	iface  string
	htype  dhcpv4.HardwareType
	hlen   byte
	chaddr net.HardwareAddr
	bhaddr net.HardwareAddr

	id    []byte
	idlen int

	requestBroadcast bool
	sendCHAddr       bool
	mtu              uint16

	ciaddr net.IP
	siaddr net.IP

	pfd      packetSocket
	ufd      udpSocket
	notifier Notifier
	tag      uint64

	state State

	openPacket func(iface string, clientPort int) (packetSocket, error)
	openUDP    func(client, server net.IP, clientPort, serverPort int) (udpSocket, error)
}

// New constructs a Connection in state INIT. ifaceName identifies the
// network interface this connection will bind its raw packet socket to
// once Listen is called. notifier is borrowed: its lifetime must strictly
// exceed the Connection's (§5).
func New(ifaceName string, htype dhcpv4.HardwareType, hlen byte, chaddr, bhaddr net.HardwareAddr, id []byte, requestBroadcast bool, mtu uint16, notifier Notifier) (*Connection, error) {
	if hlen > dhcpv4.MaxCHAddrLen {
		return nil, fmt.Errorf("%w: hlen %d exceeds %d", ErrInvalid, hlen, dhcpv4.MaxCHAddrLen)
	}
	if len(id) == 1 {
		return nil, fmt.Errorf("%w: client-identifier length of 1 is reserved for \"none\"", ErrInvalid)
	}

	c := &Connection{
		iface:            ifaceName,
		htype:            htype,
		hlen:             hlen,
		chaddr:           chaddr,
		bhaddr:           bhaddr,
		id:               id,
		idlen:            len(id),
		requestBroadcast: requestBroadcast,
		sendCHAddr:       true,
		mtu:              mtu,
		notifier:         notifier,
		tag:              readinessTag,
		state:            StateInit,
		openPacket:       openPacketSocket,
		openUDP:          openUDPSocket,
	}

	if htype == dhcpv4.HTypeInfiniBand {
		c.requestBroadcast = true
		c.sendCHAddr = false
	}

	return c, nil
}

func (c *Connection) assertState(want State) {
	if c.state != want {
		panic(ContractViolation{Msg: fmt.Sprintf("operation requires state %s, connection is in state %s", want, c.state)})
	}
}

func (c *Connection) assertStateAtLeast(want State) {
	if c.state < want {
		panic(ContractViolation{Msg: fmt.Sprintf("operation requires state >= %s, connection is in state %s", want, c.state)})
	}
}

// State returns the current state, mainly for logging/metrics in the
// surrounding dispatcher.
func (c *Connection) State() State { return c.state }

// CheckInvariants verifies the descriptor-presence table (§3) for whatever
// state the connection currently reports. It is not called from any
// operation on the hot path; it exists so tests can assert the invariant
// holds after each transition.
func (c *Connection) CheckInvariants() error {
	if c.hlen > dhcpv4.MaxCHAddrLen {
		return fmt.Errorf("hlen %d exceeds %d", c.hlen, dhcpv4.MaxCHAddrLen)
	}
	if c.idlen == 1 {
		return fmt.Errorf("idlen == 1 is forbidden")
	}
	switch c.state {
	case StateInit:
		if c.pfd != nil || c.ufd != nil {
			return fmt.Errorf("INIT requires both descriptors absent")
		}
	case StatePacket:
		if c.pfd == nil || c.ufd != nil {
			return fmt.Errorf("PACKET requires pfd present, ufd absent")
		}
	case StateDraining:
		if c.pfd == nil || c.ufd == nil {
			return fmt.Errorf("DRAINING requires both descriptors present")
		}
	case StateUDP:
		if c.pfd != nil || c.ufd == nil {
			return fmt.Errorf("UDP requires pfd absent, ufd present")
		}
	default:
		return fmt.Errorf("unknown state %d", c.state)
	}
	return nil
}

// Listen opens the raw packet socket and registers it on the notifier,
// transitioning INIT -> PACKET. Precondition: state INIT.
func (c *Connection) Listen() error {
	c.assertState(StateInit)

	sock, err := c.openPacket(c.iface, dhcpv4.ClientPort)
	if err != nil {
		return fmt.Errorf("dhcp4c: opening packet socket: %w", err)
	}
	if err := c.notifier.Add(sock.Fd(), c.tag); err != nil {
		sock.Close()
		return fmt.Errorf("dhcp4c: registering packet socket: %w", err)
	}

	c.pfd = sock
	c.state = StatePacket
	return nil
}

// Connect opens a UDP socket bound to client and connected to server,
// registers it, and transitions PACKET -> DRAINING. ciaddr/siaddr are
// recorded for use by RENEW/REBIND/RELEASE. Precondition: state PACKET.
func (c *Connection) Connect(client, server net.IP) error {
	c.assertState(StatePacket)

	sock, err := c.openUDP(client, server, dhcpv4.ClientPort, dhcpv4.ServerPort)
	if err != nil {
		return fmt.Errorf("dhcp4c: opening udp socket: %w", err)
	}
	if err := c.notifier.Add(sock.Fd(), c.tag); err != nil {
		sock.Close()
		return fmt.Errorf("dhcp4c: registering udp socket: %w", err)
	}

	c.ufd = sock
	c.ciaddr = client
	c.siaddr = server
	c.state = StateDraining
	return nil
}

// Close deregisters and closes every owned descriptor in LIFO order and
// resets the connection to its zeroed INIT form. Safe to call from any
// state.
func (c *Connection) Close() {
	if c.ufd != nil {
		c.notifier.Remove(c.ufd.Fd())
		c.ufd.Close()
		c.ufd = nil
	}
	if c.pfd != nil {
		c.notifier.Remove(c.pfd.Fd())
		c.pfd.Close()
		c.pfd = nil
	}
	c.state = StateInit
	c.ciaddr = nil
	c.siaddr = nil
}

// errWouldBlock is returned by the socket read wrappers when there is
// nothing to read right now. The real sockets (sockets_linux.go) translate
// EAGAIN/EWOULDBLOCK into this sentinel; fakes used in tests can return it
// directly.
var errWouldBlock = errors.New("dhcp4c: would block")

func isWouldBlock(err error) bool {
	return errors.Is(err, errWouldBlock)
}

// Dispatch reads and validates one inbound message, or reports that none
// is currently available (§4.2). It never blocks.
func (c *Connection) Dispatch() (*dhcpv4.IncomingMessage, error) {
	switch c.state {
	case StateInit:
		panic(ContractViolation{Msg: "Dispatch called in state INIT"})
	case StatePacket, StateDraining:
		// dispatchPacket itself performs the DRAINING -> UDP transition
		// and falls through to dispatchUDP on EWOULDBLOCK, so a single
		// Dispatch() call can complete the transition and still return a
		// UDP-sourced message if one is already queued (§9).
		return c.dispatchPacket()
	case StateUDP:
		return c.dispatchUDP()
	default:
		panic(ContractViolation{Msg: fmt.Sprintf("Dispatch called in unknown state %d", c.state)})
	}
}

// completeDrain deregisters and closes pfd, transitioning DRAINING -> UDP.
// dispatchPacket calls it once pfd has gone quiet (EWOULDBLOCK), matching
// §4.2's rule that a single Dispatch() call may itself complete the
// transition.
func (c *Connection) completeDrain() {
	c.notifier.Remove(c.pfd.Fd())
	c.pfd.Close()
	c.pfd = nil
	c.state = StateUDP
}

func (c *Connection) dispatchPacket() (*dhcpv4.IncomingMessage, error) {
	buf := make([]byte, 64*1024)
	n, payload, err := c.pfd.Recv(buf)
	if err != nil {
		if isWouldBlock(err) {
			if c.state == StateDraining {
				c.completeDrain()
				return c.dispatchUDP()
			}
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if payload == nil {
		// decodeFrame rejected the frame (not IPv4/UDP) — not a wire
		// parse failure of a DHCP message, just link-layer noise the BPF
		// filter let through; drop it the same way.
		return nil, nil
	}
	return c.parseAndVerify(payload)
}

func (c *Connection) dispatchUDP() (*dhcpv4.IncomingMessage, error) {
	buf := make([]byte, 64*1024)
	n, err := c.ufd.Recv(buf)
	if err != nil {
		if isWouldBlock(err) {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return c.parseAndVerify(buf[:n])
}

func (c *Connection) parseAndVerify(raw []byte) (*dhcpv4.IncomingMessage, error) {
	msg, err := dhcpv4.ParseMessage(raw)
	if err != nil {
		// Wire parse failure on inbound: drop silently (§7).
		return nil, nil
	}
	if !c.verifyIdentity(msg) {
		// Identity mismatch on inbound: drop silently (§7).
		return nil, nil
	}
	return msg, nil
}

func (c *Connection) verifyIdentity(msg *dhcpv4.IncomingMessage) bool {
	h := msg.Header()
	if len(h.CHAddr) < int(c.hlen) || len(c.chaddr) < int(c.hlen) {
		return false
	}
	if !bytes.Equal(h.CHAddr[:c.hlen], c.chaddr[:c.hlen]) {
		return false
	}

	cid := msg.ClientIdentifier()
	if len(cid) != c.idlen {
		return false
	}
	if c.idlen > 0 && !bytes.Equal(cid, c.id) {
		return false
	}
	return true
}
