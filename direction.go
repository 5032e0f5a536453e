package keyset

// Direction is the traversal direction of a page request: next walks the
// dataset in its configured order, prev walks back toward the beginning.
type Direction string

const (
	DirectionNext Direction = "next"
	DirectionPrev Direction = "prev"
)

func (d Direction) Valid() bool {
	return d == DirectionNext || d == DirectionPrev
}

// ParseDirection maps a raw request value to a Direction. Anything that is
// not exactly "next" or "prev" falls back to next.
func ParseDirection(raw string) Direction {
	if Direction(raw) == DirectionPrev {
		return DirectionPrev
	}

	return DirectionNext
}
