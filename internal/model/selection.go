package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SelectionKind tags which arm of Selection is populated.
type SelectionKind string

const (
	SelectionSingle   SelectionKind = "single"
	SelectionMultiple SelectionKind = "multiple"
)

// Selection is what a student picked for one question, in displayed letters.
// A single selection carries exactly one letter; a multiple selection
// carries one or more.
type Selection struct {
	Kind    SelectionKind `json:"kind"`
	Letters []Letter      `json:"letters"`
}

// Single builds a single-letter selection.
func Single(l Letter) Selection {
	return Selection{Kind: SelectionSingle, Letters: []Letter{l}}
}

// Multiple builds a multi-letter selection.
func Multiple(ls ...Letter) Selection {
	return Selection{Kind: SelectionMultiple, Letters: append([]Letter(nil), ls...)}
}

// AnswerEntry pairs a question with the student's selection for it.
type AnswerEntry struct {
	QuestionID uuid.UUID `json:"question_id"`
	Selection  Selection `json:"selection"`
}

// DecodeSelection reads a raw client value for a question. A single-select
// question expects a JSON string, a multi-select question a JSON array of
// strings. The question flag, not the shape of the value, decides which.
func DecodeSelection(raw json.RawMessage, multiple bool) (Selection, error) {
	if multiple {
		var items []string
		if err := json.Unmarshal(raw, &items); err != nil {
			return Selection{}, fmt.Errorf("multi-select answer must be an array of letters: %w", err)
		}
		if len(items) == 0 {
			return Selection{}, fmt.Errorf("multi-select answer is empty")
		}
		letters := make([]Letter, 0, len(items))
		for _, it := range items {
			l, err := ParseLetter(it)
			if err != nil {
				return Selection{}, err
			}
			letters = append(letters, l)
		}
		return Multiple(letters...), nil
	}

	var item string
	if err := json.Unmarshal(raw, &item); err != nil {
		return Selection{}, fmt.Errorf("single-select answer must be a letter: %w", err)
	}
	l, err := ParseLetter(item)
	if err != nil {
		return Selection{}, err
	}
	return Single(l), nil
}

// ClientValue converts the selection back into the wire shape accepted by
// DecodeSelection: a string for single, a list for multiple.
func (s Selection) ClientValue() any {
	if s.Kind == SelectionSingle && len(s.Letters) == 1 {
		return s.Letters[0]
	}
	return s.Letters
}
