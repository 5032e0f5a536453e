package keyset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// PayloadVersion is the wire version of the cursor payload. Decoding rejects
// any other value.
const PayloadVersion = "1.0"

// Reserved top-level keys of the wire form. Cursor fields may not use them.
const (
	payloadKeyVersion  = "v"
	payloadKeyIssuedAt = "t"
)

// Payload carries the ordering-key values of a row at a page edge. It is
// minted from an actual result row, immutable afterwards and never stored
// server-side: the encrypted token is the whole state.
//
// Wire form is flat JSON:
//
//	{"v":"1.0","<field_1>":...,"<field_n>":...,"t":<epoch millis>}
type Payload struct {
	Version  string
	Fields   map[string]any
	IssuedAt int64 // epoch millis
}

// NewPayload builds a payload for the given cursor field values, stamped
// with the current time.
func NewPayload(fields map[string]any) *Payload {
	return &Payload{
		Version:  PayloadVersion,
		Fields:   fields,
		IssuedAt: time.Now().UnixMilli(),
	}
}

// Field returns the value of a cursor field. The second return reports
// whether the field is present at all; a present field may still hold nil.
func (p *Payload) Field(name string) (any, bool) {
	if p == nil {
		return nil, false
	}

	v, ok := p.Fields[name]

	return v, ok
}

// Age returns how long ago the payload was issued.
func (p *Payload) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(p.IssuedAt))
}

// MarshalJSON implements the flat wire form. Map marshalling sorts keys, so
// the output is deterministic for a given payload.
func (p *Payload) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(p.Fields)+2)
	for name, value := range p.Fields {
		if isReservedPayloadKey(name) {
			return nil, fmt.Errorf("cursor field name '%s' collides with a reserved payload key", name)
		}

		flat[name] = value
	}

	flat[payloadKeyVersion] = p.Version
	flat[payloadKeyIssuedAt] = p.IssuedAt

	return json.Marshal(flat)
}

// UnmarshalJSON parses the flat wire form. Numbers are decoded through
// json.Number and integral values are narrowed to int64 so that 64-bit
// identifiers survive the round trip.
func (p *Payload) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var flat map[string]any
	if err := decoder.Decode(&flat); err != nil {
		return err
	}

	version, ok := flat[payloadKeyVersion].(string)
	if !ok {
		return fmt.Errorf("payload version is missing")
	}

	issuedAtNumber, ok := flat[payloadKeyIssuedAt].(json.Number)
	if !ok {
		return fmt.Errorf("payload issue time is missing")
	}
	issuedAt, err := issuedAtNumber.Int64()
	if err != nil {
		return fmt.Errorf("payload issue time is not an integer: %w", err)
	}

	delete(flat, payloadKeyVersion)
	delete(flat, payloadKeyIssuedAt)

	fields := make(map[string]any, len(flat))
	for name, value := range flat {
		fields[name] = normalizeJSONValue(value)
	}

	p.Version = version
	p.Fields = fields
	p.IssuedAt = issuedAt

	return nil
}

func isReservedPayloadKey(name string) bool {
	return name == payloadKeyVersion || name == payloadKeyIssuedAt
}

// normalizeJSONValue narrows json.Number to int64 when the value is integral
// and to float64 otherwise. Other values pass through unchanged.
func normalizeJSONValue(v any) any {
	number, ok := v.(json.Number)
	if !ok {
		return v
	}

	if i, err := number.Int64(); err == nil {
		return i
	}
	if f, err := number.Float64(); err == nil {
		return f
	}

	return number.String()
}

// validateFields checks the invariants of a payload against the configured
// ordering: every column present, and non-null unless the column is marked
// Nullable.
func (p *Payload) validateFields(orderings Orderings) error {
	if len(p.Fields) != len(orderings) {
		return fmt.Errorf("cursor field number mismatch")
	}

	for _, orderBy := range orderings {
		value, ok := p.Fields[orderBy.Column]
		if !ok {
			return fmt.Errorf("cursor field '%s' is missing", orderBy.Column)
		}

		if value == nil && !orderBy.Nullable {
			return fmt.Errorf("cursor field '%s' is null", orderBy.Column)
		}
	}

	return nil
}

var _ json.Marshaler = (*Payload)(nil)
var _ json.Unmarshaler = (*Payload)(nil)
