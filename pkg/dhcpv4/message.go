package dhcpv4

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Header is the mutable BOOTP fixed header (RFC 2131 §2), exposed to callers
// building or inspecting a message. SName and File are not exposed here:
// once a message overloads them for option space they no longer carry a
// server hostname or boot filename, and the client side of this codec never
// needs either field for anything else.
type Header struct {
	Op     OpCode
	HType  HardwareType
	HLen   byte
	Hops   byte
	XID    uint32
	Secs   uint16
	Flags  uint16
	CIAddr net.IP
	YIAddr net.IP
	SIAddr net.IP
	GIAddr net.IP
	CHAddr net.HardwareAddr
}

func (h *Header) Broadcast() bool {
	return h.Flags&FlagBroadcast != 0
}

// mainOptionsCapacity bounds how many TLV bytes this codec will place in the
// variable-length options area before spilling into the legacy SName/File
// fields, when the caller has opted into overload support. Nothing in RFC
// 2131 forces this — the options area that follows the magic cookie can
// grow as large as the packet allows — but capping it is the only way to
// actually exercise the overload path a conforming decoder must still
// support, so this codec enforces the cap deliberately rather than only
// accepting it passively from the wire.
const mainOptionsCapacity = 60

// overloadOptionSize is the encoded size (code + length + value) of the
// OVERLOAD option itself, reserved out of mainOptionsCapacity whenever
// overload is actually engaged.
const overloadOptionSize = 3

// endMarkerSize is the trailing END option byte, reserved out of whichever
// area turns out to hold the last option.
const endMarkerSize = 1

// ErrOverflow is returned by OutgoingMessage.Append when a value would not
// fit in the space this message was constructed to offer.
var ErrOverflow = fmt.Errorf("dhcpv4: option does not fit in available space")

// IncomingMessage is a parsed, read-only DHCPv4 message.
type IncomingMessage struct {
	header Header
	opts   map[OptionCode][]byte
}

// ParseMessage decodes a raw DHCPv4 message, including any options spilled
// into the legacy SName/File header fields via the overload mechanism
// (RFC 2131 §4.1, option 52).
func ParseMessage(data []byte) (*IncomingMessage, error) {
	if len(data) < HeaderLen+MagicCookieLen {
		return nil, fmt.Errorf("dhcpv4: packet too short: %d bytes (minimum %d)", len(data), HeaderLen+MagicCookieLen)
	}

	m := &IncomingMessage{opts: make(map[OptionCode][]byte)}
	h := &m.header
	h.Op = OpCode(data[0])
	h.HType = HardwareType(data[1])
	h.HLen = data[2]
	h.Hops = data[3]
	h.XID = binary.BigEndian.Uint32(data[4:8])
	h.Secs = binary.BigEndian.Uint16(data[8:10])
	h.Flags = binary.BigEndian.Uint16(data[10:12])
	h.CIAddr = append(net.IP{}, data[12:16]...)
	h.YIAddr = append(net.IP{}, data[16:20]...)
	h.SIAddr = append(net.IP{}, data[20:24]...)
	h.GIAddr = append(net.IP{}, data[24:28]...)

	chaddr := make([]byte, MaxCHAddrLen)
	copy(chaddr, data[28:44])
	if h.HLen <= MaxCHAddrLen {
		h.CHAddr = net.HardwareAddr(chaddr[:h.HLen])
	} else {
		h.CHAddr = net.HardwareAddr(chaddr[:0])
	}

	sname := data[44:108]
	file := data[108:236]
	cookie := data[236:240]
	if cookie[0] != MagicCookie[0] || cookie[1] != MagicCookie[1] || cookie[2] != MagicCookie[2] || cookie[3] != MagicCookie[3] {
		return nil, fmt.Errorf("dhcpv4: invalid magic cookie: %v", cookie)
	}

	overload, done, err := decodeOptionsInto(m.opts, data[240:])
	if err != nil {
		return nil, fmt.Errorf("dhcpv4: decoding options: %w", err)
	}
	if !done && overload&OverloadFile != 0 {
		overload, done, err = decodeOptionsInto(m.opts, file)
		if err != nil {
			return nil, fmt.Errorf("dhcpv4: decoding overloaded file field: %w", err)
		}
	}
	if !done && overload&OverloadSname != 0 {
		if _, _, err := decodeOptionsInto(m.opts, sname); err != nil {
			return nil, fmt.Errorf("dhcpv4: decoding overloaded sname field: %w", err)
		}
	}

	return m, nil
}

// decodeOptionsInto scans a TLV byte region, storing options into dst. It
// returns the OVERLOAD option's value if one was seen (zero otherwise) and
// whether the scan reached an explicit END marker (as opposed to simply
// running out of bytes, which signals the caller to continue into the next
// overloaded region).
func decodeOptionsInto(dst map[OptionCode][]byte, data []byte) (overload byte, done bool, err error) {
	i := 0
	for i < len(data) {
		code := OptionCode(data[i])
		i++
		if code == OptionPad {
			continue
		}
		if code == OptionEnd {
			return overload, true, nil
		}
		if i >= len(data) {
			return overload, false, fmt.Errorf("truncated option %d: no length byte", code)
		}
		length := int(data[i])
		i++
		if i+length > len(data) {
			return overload, false, fmt.Errorf("truncated option %d: need %d bytes, have %d", code, length, len(data)-i)
		}
		value := make([]byte, length)
		copy(value, data[i:i+length])
		i += length
		if code == OptionOverload && length == 1 {
			overload = value[0]
			continue
		}
		if _, exists := dst[code]; !exists {
			dst[code] = value
		}
	}
	return overload, false, nil
}

// Header returns the parsed BOOTP header.
func (m *IncomingMessage) Header() *Header {
	return &m.header
}

// Query returns the raw bytes of an option, or false if absent.
func (m *IncomingMessage) Query(code OptionCode) ([]byte, bool) {
	v, ok := m.opts[code]
	return v, ok
}

// MessageType returns the value of option 53, or 0 if absent/malformed.
func (m *IncomingMessage) MessageType() MessageType {
	if v, ok := m.opts[OptionDHCPMessageType]; ok && len(v) == 1 {
		return MessageType(v[0])
	}
	return 0
}

// RequestedIP returns option 50.
func (m *IncomingMessage) RequestedIP() net.IP {
	if v, ok := m.opts[OptionRequestedIP]; ok && len(v) == 4 {
		return net.IP(v)
	}
	return nil
}

// ServerIdentifier returns option 54.
func (m *IncomingMessage) ServerIdentifier() net.IP {
	if v, ok := m.opts[OptionServerIdentifier]; ok && len(v) == 4 {
		return net.IP(v)
	}
	return nil
}

// ClientIdentifier returns option 61.
func (m *IncomingMessage) ClientIdentifier() []byte {
	return m.opts[OptionClientIdentifier]
}

// OutgoingMessage is a message under construction. Zero value is not
// usable; build one with NewOutgoingMessage.
type OutgoingMessage struct {
	Header   Header
	overload byte
	codes    []OptionCode
	values   map[OptionCode][]byte
}

// NewOutgoingMessage allocates a message whose option area may, if needed,
// spill into the legacy SName and/or File header fields. overloadFlags is
// an OR of OverloadFile/OverloadSname (OverloadNone disables spilling).
func NewOutgoingMessage(overloadFlags byte) *OutgoingMessage {
	return &OutgoingMessage{
		overload: overloadFlags,
		values:   make(map[OptionCode][]byte),
	}
}

// HeaderMut returns the message's header for in-place mutation.
func (m *OutgoingMessage) HeaderMut() *Header {
	return &m.Header
}

func (m *OutgoingMessage) capacity() int {
	cap := mainOptionsCapacity
	if m.overload&OverloadFile != 0 {
		cap += FileLen
	}
	if m.overload&OverloadSname != 0 {
		cap += SNameLen
	}
	if m.overload != OverloadNone {
		cap -= overloadOptionSize
	}
	return cap - endMarkerSize
}

// Append adds or replaces an option, returning ErrOverflow if doing so would
// exceed the space this message was constructed to offer.
func (m *OutgoingMessage) Append(code OptionCode, value []byte) error {
	if len(value) > 255 {
		return fmt.Errorf("dhcpv4: option %d value too long (%d bytes)", code, len(value))
	}
	prev, existed := m.values[code]
	m.values[code] = value
	if !existed {
		m.codes = append(m.codes, code)
	}

	total := 0
	for _, c := range m.codes {
		total += 2 + len(m.values[c])
	}
	if total > m.capacity() {
		if existed {
			m.values[code] = prev
		} else {
			delete(m.values, code)
			m.codes = m.codes[:len(m.codes)-1]
		}
		return ErrOverflow
	}
	return nil
}

// stream serializes the appended options, in append order, terminated by END.
func (m *OutgoingMessage) stream() []byte {
	var buf []byte
	for _, c := range m.codes {
		v := m.values[c]
		buf = append(buf, byte(c), byte(len(v)))
		buf = append(buf, v...)
	}
	buf = append(buf, byte(OptionEnd))
	return buf
}

// Raw serializes the full message: header, magic cookie, and options, with
// overload spillover into SName/File applied if the appended options
// exceeded mainOptionsCapacity.
func (m *OutgoingMessage) Raw() []byte {
	full := m.stream()

	var mainOpts, fileField, snameField []byte
	fileField = make([]byte, FileLen)
	snameField = make([]byte, SNameLen)

	if len(full) <= mainOptionsCapacity {
		mainOpts = full
	} else {
		used := byte(OverloadNone)
		rest := full
		budget := mainOptionsCapacity - overloadOptionSize
		take := budget
		if take > len(rest) {
			take = len(rest)
		}
		mainBody := rest[:take]
		rest = rest[take:]

		if len(rest) > 0 && m.overload&OverloadFile != 0 {
			used |= OverloadFile
			take = FileLen
			if take > len(rest) {
				take = len(rest)
			}
			copy(fileField, rest[:take])
			rest = rest[take:]
		}
		if len(rest) > 0 && m.overload&OverloadSname != 0 {
			used |= OverloadSname
			take = SNameLen
			if take > len(rest) {
				take = len(rest)
			}
			copy(snameField, rest[:take])
			rest = rest[take:]
		}

		mainOpts = append([]byte{byte(OptionOverload), 1, used}, mainBody...)
	}

	totalLen := HeaderLen + MagicCookieLen + len(mainOpts)
	if totalLen < MinPacketSize {
		totalLen = MinPacketSize
	}

	buf := make([]byte, totalLen)
	h := &m.Header
	buf[0] = byte(h.Op)
	buf[1] = byte(h.HType)
	buf[2] = h.HLen
	buf[3] = h.Hops
	binary.BigEndian.PutUint32(buf[4:8], h.XID)
	binary.BigEndian.PutUint16(buf[8:10], h.Secs)
	binary.BigEndian.PutUint16(buf[10:12], h.Flags)
	if h.CIAddr != nil {
		copy(buf[12:16], h.CIAddr.To4())
	}
	if h.YIAddr != nil {
		copy(buf[16:20], h.YIAddr.To4())
	}
	if h.SIAddr != nil {
		copy(buf[20:24], h.SIAddr.To4())
	}
	if h.GIAddr != nil {
		copy(buf[24:28], h.GIAddr.To4())
	}
	if h.CHAddr != nil {
		copy(buf[28:44], h.CHAddr)
	}
	copy(buf[44:108], snameField)
	copy(buf[108:236], fileField)
	copy(buf[236:240], MagicCookie[:])
	copy(buf[240:], mainOpts)

	return buf
}
