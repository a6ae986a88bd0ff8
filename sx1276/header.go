// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

// HeaderLen is the length of the header that precedes every payload.
const HeaderLen = 4

// MaxPayloadLen is the largest packet the FIFO and the PayloadLength register can hold.
const MaxPayloadLen = 255

// MaxMessageLen is the largest message body that fits in a packet after the header.
const MaxMessageLen = MaxPayloadLen - HeaderLen

// Header is the 4-byte header that goes in front of each message body.
//
// The layout on air is:
//
//	byte 0: To, destination node address, 0xff is broadcast
//	byte 1: From, source node address
//	byte 2: ID, sequence id, not interpreted by the driver
//	byte 3: Flags, opaque to the driver
type Header struct {
	To    byte
	From  byte
	ID    byte
	Flags byte
}

// Encode writes the header into the first HeaderLen bytes of buf, which must be large
// enough.
func (h Header) Encode(buf []byte) {
	_ = buf[HeaderLen-1]
	buf[0] = h.To
	buf[1] = h.From
	buf[2] = h.ID
	buf[3] = h.Flags
}

// ParseHeader extracts the header from the front of a packet. It returns false if the
// packet is too short to carry one.
func ParseHeader(pkt []byte) (Header, bool) {
	if len(pkt) < HeaderLen {
		return Header{}, false
	}
	return Header{To: pkt[0], From: pkt[1], ID: pkt[2], Flags: pkt[3]}, true
}

// Frame is a received message.
type Frame struct {
	Header
	Payload []byte // message body, excluding the header
	Rssi    int    // rssi in dBm for the packet
}
