package keyset

import (
	"fmt"
	"net/url"
	"strconv"
)

// Query parameter names recognized by ParseQuery.
const (
	ParamLimit     = "limit"
	ParamDirection = "direction"
	ParamCursor    = "cursor"
)

// Params carries raw, not-yet-validated pagination inputs, one field per
// transport parameter. Zero value means "first page, defaults".
type Params struct {
	Limit     int
	Direction Direction
	Cursor    string
}

// ParseQuery extracts pagination params from a query string. An absent or
// unparseable limit falls back to DefaultLimit; out-of-range numeric values
// survive here and are clamped later by Validate. No cursor decoding
// happens at this stage.
func ParseQuery(values url.Values) Params {
	limit := DefaultLimit
	if raw := values.Get(ParamLimit); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	return Params{
		Limit:     limit,
		Direction: ParseDirection(values.Get(ParamDirection)),
		Cursor:    values.Get(ParamCursor),
	}
}

// Request is a validated pagination request: the limit is clamped to
// [MinLimit, MaxLimit], the direction is valid and the cursor, when
// present, is authenticated and parsed. RawCursor keeps the incoming token
// verbatim for edge-cursor pass-through.
type Request struct {
	Limit     int
	Direction Direction
	Cursor    *Payload
	RawCursor string
}

// HasCursor reports whether the request continues from a previously minted
// cursor rather than starting at the dataset edge.
func (r Request) HasCursor() bool {
	return r.Cursor != nil
}

// Validate normalizes p into a Request, decoding the cursor through codec.
// Decode failures propagate as ErrInvalidCursor or ErrExpiredCursor
// untouched, so callers can map them onto their API error shape.
func (p Params) Validate(codec *Codec) (Request, error) {
	if codec == nil {
		return Request{}, fmt.Errorf("cursor codec is required")
	}

	payload, err := codec.Decode(p.Cursor)
	if err != nil {
		return Request{}, err
	}

	direction := p.Direction
	if !direction.Valid() {
		direction = DirectionNext
	}

	return Request{
		Limit:     NormalizeLimit(p.Limit),
		Direction: direction,
		Cursor:    payload,
		RawCursor: p.Cursor,
	}, nil
}
