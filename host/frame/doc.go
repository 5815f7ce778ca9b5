// Package frame implements the packet codec used on the raw HID channel.
//
// A logical message (opcode plus up to [MaxPayload] bytes) travels as a
// sequence of fixed-size packets. Every packet starts with a 4-byte header
// followed by [Codec.PayloadSize] data bytes:
//
//	byte 0    flags: bit 7 LAST, bit 6 EVENT, bits 0-5 sequence (mod 64)
//	byte 1    opcode (first packet only, zero otherwise)
//	byte 2-3  total payload length, little endian (first packet only)
//	byte 4..  payload data, zero padded
//
// The first packet gives the receiver everything it needs to size the
// reassembly; continuation packets carry payload only. Responses use the
// same layout with the device's response code in the opcode byte. Packets
// with the EVENT flag are single-packet notifications that are not part of
// any request/response exchange.
//
// Backends that prepend a HID report id add that byte outside of the
// layout above.
package frame
