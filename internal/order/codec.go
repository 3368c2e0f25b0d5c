package order

import (
	"encoding/json"
	"fmt"
)

// Record is the wire form of an event: a field-name-tagged map, which is
// what both the corrupting producer and the consumer work with. Decoding to
// a map rather than a struct keeps malformed-but-parseable payloads (missing
// fields, wrong types) processable instead of fatal.
type Record map[string]any

// Encode serializes a valid order as UTF-8 JSON.
func Encode(o Order) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order %s: %w", o.OrderID, err)
	}
	return b, nil
}

// EncodeRecord serializes a wire-map record, typically a corrupted order.
func EncodeRecord(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return b, nil
}

// Decode parses consumed bytes back into a record. Decoding is pure, so the
// same payload always yields a structurally identical record.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}

// EventTimeMS returns the embedded origination timestamp when it is present
// and a well-typed number. A missing or mistyped field is not an error for
// the caller, it just carries no latency information.
func (r Record) EventTimeMS() (int64, bool) {
	v, ok := r["event_time_ms"].(float64)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

// OrderID returns the record's identifier, empty when absent.
func (r Record) OrderID() string {
	s, _ := r["order_id"].(string)
	return s
}

// Item returns the record's item name, empty when absent.
func (r Record) Item() string {
	s, _ := r["item"].(string)
	return s
}

// Quantity returns the record's quantity, zero when absent or mistyped.
func (r Record) Quantity() int {
	v, _ := r["quantity"].(float64)
	return int(v)
}

// record converts a struct-form order into its wire map by a marshal
// round trip, so corruption can remove fields the struct cannot.
func (o Order) record() Record {
	b, err := json.Marshal(o)
	if err != nil {
		// Order contains only plain JSON-safe fields.
		panic(err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		panic(err)
	}
	return r
}
