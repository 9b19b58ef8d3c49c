package ranking

import "strconv"

// Rank is a 1-based position in a result stream, or NotFound. The zero value is NotFound.
type Rank struct {
	pos int
}

// NotFound means the target was not located within the scanned range.
var NotFound = Rank{}

// At returns the rank at position n. Non-positive n yields NotFound.
func At(n int) Rank {
	if n < 1 {
		return NotFound
	}
	return Rank{pos: n}
}

// FromNullable maps a nullable column value to a Rank.
func FromNullable(v *int) Rank {
	if v == nil {
		return NotFound
	}
	return At(*v)
}

// Found reports whether the rank carries a position.
func (r Rank) Found() bool { return r.pos > 0 }

// Position returns the position and whether it is set.
func (r Rank) Position() (int, bool) { return r.pos, r.pos > 0 }

// Nullable returns the position for storage, nil when not found.
func (r Rank) Nullable() *int {
	if r.pos <= 0 {
		return nil
	}
	v := r.pos
	return &v
}

func (r Rank) String() string {
	if r.pos <= 0 {
		return "unranked"
	}
	return strconv.Itoa(r.pos)
}
