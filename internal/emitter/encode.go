package emitter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Payload formats.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Encode serializes v as JSON or msgpack. Msgpack payloads use the json
// struct tags so both formats share field names.
func Encode(v interface{}, format string) ([]byte, error) {
	switch format {
	case "", FormatJSON:
		return json.Marshal(v)
	case FormatMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("emitter: unknown payload format %q", format)
	}
}
