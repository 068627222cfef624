package percival

// DefaultPayloadLen is the largest payload the instrument puts in one packet.
const DefaultPayloadLen = 8192

// NextPayloadSize returns the payload length of the next packet of a stream:
// the smallest of payloadLen, what is left of the current subframe and what
// is left of the stream.
//
// bytesRemaining is what is left of the stream, subframeTotal how much of the
// current subframe has been sent already. The result is positive whenever
// bytesRemaining is, and never carries the packet past the subframe end, even
// when payloadLen exceeds subframeSize.
func NextPayloadSize(bytesRemaining, subframeTotal, subframeSize, payloadLen int) int {
	size := payloadLen
	if remainder := subframeSize - subframeTotal; remainder < size {
		size = remainder
	}
	if bytesRemaining < size {
		size = bytesRemaining
	}
	return size
}

// PacketsPerSubframe returns how many packets one subframe is split into.
func PacketsPerSubframe(subframeSize, payloadLen int) int {
	if subframeSize <= 0 || payloadLen <= 0 {
		return 0
	}
	return (subframeSize + payloadLen - 1) / payloadLen
}
