package domain

import (
	"encoding/json"
	"fmt"
)

// Rating is the learner's verdict on a single recall attempt.
type Rating int

const (
	Miss   Rating = iota + 1 // Failed recall: demote to box 1 and lock for relearning.
	Repeat                   // Practice again this session; scheduling untouched.
	Next                     // Acceptable recall, no promotion.
	Easy                     // Strong recall, promotes one box unless frozen.
)

var (
	ratingNames  = [...]string{Miss: "Miss", Repeat: "Repeat", Next: "Next", Easy: "Easy"}
	ratingByName = map[string]Rating{
		"Miss":   Miss,
		"Repeat": Repeat,
		"Next":   Next,
		"Easy":   Easy,
	}
)

var (
	_ fmt.Stringer     = Rating(0)
	_ json.Marshaler   = Rating(0)
	_ json.Unmarshaler = (*Rating)(nil)
)

// ParseRating converts a rating name ("Miss", "Repeat", "Next", "Easy").
func ParseRating(s string) (Rating, error) {
	r, ok := ratingByName[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
	return r, nil
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// IsValid reports whether r is one of the four known ratings.
func (r Rating) IsValid() bool {
	return r >= Miss && r <= Easy
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	v, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalJSON encodes the rating as its name.
func (r Rating) MarshalJSON() ([]byte, error) {
	text, err := r.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON expects a JSON string holding the rating name.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRating, data)
	}
	return r.UnmarshalText([]byte(s))
}
