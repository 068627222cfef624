// Package percival packetizes Percival detector frames into the instrument's
// UDP wire format.
//
// A frame consists of two streams, image and reset. Each stream is cut into
// subframes and each subframe into packets of at most PayloadLen bytes; a
// packet never carries bytes from two subframes. Every packet is prefixed
// with a fixed big-endian header (see Header) and sent to each configured
// destination, image packets on the destination's base port and reset
// packets on base port + 1.
//
// Sequencer is the packetization state machine and can be stepped one packet
// at a time. Transmitter drives a Sequencer and hands datagrams to a Sender.
package percival
