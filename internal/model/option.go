package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Letter identifies one of the four answer options.
type Letter string

const (
	LetterA Letter = "A"
	LetterB Letter = "B"
	LetterC Letter = "C"
	LetterD Letter = "D"
)

// Letters lists the option letters in canonical order.
var Letters = [4]Letter{LetterA, LetterB, LetterC, LetterD}

// ParseLetter normalizes s (case and surrounding space) into a Letter.
func ParseLetter(s string) (Letter, error) {
	l := Letter(strings.ToUpper(strings.TrimSpace(s)))
	if l.Index() < 0 {
		return "", fmt.Errorf("invalid option letter %q", s)
	}
	return l, nil
}

// Index returns the position of l in Letters, or -1 if l is not an option letter.
func (l Letter) Index() int {
	switch l {
	case LetterA:
		return 0
	case LetterB:
		return 1
	case LetterC:
		return 2
	case LetterD:
		return 3
	}
	return -1
}

// Valid reports whether l is one of A-D.
func (l Letter) Valid() bool { return l.Index() >= 0 }

// OptionMapping records how one question's options were relabelled for a
// student. The array index is the canonical letter (A=0 … D=3) and the value
// is the letter the student saw for it.
type OptionMapping [4]Letter

// IdentityMapping shows every option under its own letter.
var IdentityMapping = OptionMapping{LetterA, LetterB, LetterC, LetterD}

// Valid reports whether m is a permutation of A-D.
func (m OptionMapping) Valid() bool {
	var seen [4]bool
	for _, l := range m {
		i := l.Index()
		if i < 0 || seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

// Displayed returns the letter shown to the student for canonical letter c.
func (m OptionMapping) Displayed(c Letter) Letter {
	return m[c.Index()]
}

// Inverse returns the displayed-to-canonical table for m.
func (m OptionMapping) Inverse() map[Letter]Letter {
	inv := make(map[Letter]Letter, len(m))
	for i, displayed := range m {
		inv[displayed] = Letters[i]
	}
	return inv
}

// MarshalJSON stores the mapping as {"A":"C","B":"A",...} keyed by canonical letter.
func (m OptionMapping) MarshalJSON() ([]byte, error) {
	obj := make(map[Letter]Letter, len(m))
	for i, displayed := range m {
		obj[Letters[i]] = displayed
	}
	return json.Marshal(obj)
}

// UnmarshalJSON accepts the object form written by MarshalJSON and rejects
// anything that is not a full permutation.
func (m *OptionMapping) UnmarshalJSON(data []byte) error {
	var obj map[Letter]Letter
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj) != len(Letters) {
		return fmt.Errorf("option mapping needs %d entries, got %d", len(Letters), len(obj))
	}
	var out OptionMapping
	for canonical, displayed := range obj {
		i := canonical.Index()
		if i < 0 {
			return fmt.Errorf("invalid canonical letter %q", canonical)
		}
		out[i] = displayed
	}
	if !out.Valid() {
		return fmt.Errorf("option mapping is not a permutation of A-D")
	}
	*m = out
	return nil
}
