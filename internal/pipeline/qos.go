package pipeline

import "math"

// qosCounter normalizes a QoS stats counter. GStreamer reports -1
// (G_MAXUINT64) when the element does not know the value.
func qosCounter(v uint64) uint64 {
	if v == math.MaxUint64 {
		return 0
	}
	return v
}
