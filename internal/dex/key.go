package dex

import (
	"strconv"
	"strings"

	"pokedex/internal/common/errors"
)

// Key identifies a record by numeric id or by case-insensitive name.
type Key struct {
	id   int
	name string
}

// IDKey returns a key for a numeric id
func IDKey(id int) Key {
	return Key{id: id}
}

// NameKey returns a key for a name. Names are case-folded.
func NameKey(name string) Key {
	return Key{name: strings.ToLower(strings.TrimSpace(name))}
}

// ParseKey treats an all-digit string as an id and anything else as a name.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}, errors.ValidationError("id or name is required")
	}

	if isDigits(s) {
		id, err := strconv.Atoi(s)
		if err != nil || id <= 0 {
			return Key{}, errors.ValidationError("id must be a positive integer")
		}
		return IDKey(id), nil
	}

	return NameKey(s), nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (k Key) IsID() bool {
	return k.name == ""
}

func (k Key) ID() int {
	return k.id
}

func (k Key) Name() string {
	return k.name
}

func (k Key) String() string {
	if k.IsID() {
		return strconv.Itoa(k.id)
	}
	return k.name
}

func (k Key) valid() bool {
	if k.IsID() {
		return k.id > 0
	}
	return true
}
