//go:build cgo

package pipeline

/*
#cgo pkg-config: gstreamer-1.0
#include <gst/gst.h>
*/
import "C"

import (
	"unsafe"

	"github.com/tinyzimmer/go-gst/gst"
)

// parseQoSStats reads the processed and dropped counters of a QoS
// message. The bindings only expose the timestamps (ParseQoS).
func parseQoSStats(msg *gst.Message) (processed, dropped uint64) {
	var format C.GstFormat
	var p, d C.guint64
	C.gst_message_parse_qos_stats((*C.GstMessage)(unsafe.Pointer(msg.Instance())), &format, &p, &d)
	return qosCounter(uint64(p)), qosCounter(uint64(d))
}
