// Package model defines the basic key-value record stored by the tree.
package model

import (
	"strings"

	"github.com/pkg/errors"
)

// Delim separates key and value on disk. Neither key nor value may contain
// it, nor the line terminator, since the on-disk format has no escaping.
const Delim = ":"

// LineTerm is the record terminator in block files.
const LineTerm = "\n"

// ErrInvalidPair is returned by NewPair when key or value violate the
// pair contract (empty, or containing a reserved byte).
var ErrInvalidPair = errors.New("invalid pair")

// Pair is an ordered (key, value); the store orders and looks up pairs by
// Key alone, Value is payload. Comparing two Pairs with == compares both
// fields.
type Pair struct {
	Key   string
	Value string
}

// NewPair validates and constructs a Pair.
func NewPair(key, value string) (Pair, error) {
	if err := validateField(key); err != nil {
		return Pair{}, errors.Wrapf(ErrInvalidPair, "key %q: %s", key, err)
	}
	if err := validateField(value); err != nil {
		return Pair{}, errors.Wrapf(ErrInvalidPair, "value %q: %s", value, err)
	}
	return Pair{Key: key, Value: value}, nil
}

func validateField(s string) error {
	if s == "" {
		return errors.New("must be non-empty")
	}
	if strings.Contains(s, Delim) {
		return errors.Errorf("must not contain delimiter %q", Delim)
	}
	if strings.Contains(s, LineTerm) {
		return errors.New("must not contain a line terminator")
	}
	return nil
}

// Line renders the pair in the on-disk "key:value\n" format of spec.md §6.
func (p Pair) Line() string {
	return p.Key + Delim + p.Value + LineTerm
}

// ParseLine parses one on-disk record line (with or without its trailing
// newline, per §4.1's "must tolerate a missing final newline").
func ParseLine(line string) (Pair, error) {
	line = strings.TrimSuffix(line, LineTerm)
	parts := strings.Split(line, Delim)
	if len(parts) != 2 {
		return Pair{}, errors.Errorf("corrupt record line %q: expected exactly one %q", line, Delim)
	}
	return Pair{Key: parts[0], Value: parts[1]}, nil
}
