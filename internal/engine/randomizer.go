package engine

import (
	"fmt"
	"math/rand/v2"

	"github.com/stemsi/exstem-examcore/internal/model"
)

// Rand is the randomness source used for shuffling. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand draws from the runtime's shared generator and is safe for
// concurrent use.
var DefaultRand Rand = globalRand{}

// Shuffle permutes items in place with Fisher–Yates, walking from the last
// index down and swapping with a uniformly drawn index at or below it.
func Shuffle[T any](items []T, rng Rand) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// DrawMapping shuffles A-D; the canonical letter that lands in position k is
// displayed as the k-th letter.
func DrawMapping(rng Rand) model.OptionMapping {
	order := model.Letters
	Shuffle(order[:], rng)

	var m model.OptionMapping
	for k, canonical := range order {
		m[canonical.Index()] = model.Letters[k]
	}
	return m
}

// PresentQuestion relabels q's options according to mapping. The result
// carries no answer key.
func PresentQuestion(q *model.Question, mapping model.OptionMapping) model.PresentedQuestion {
	var shown [4]string
	for i, text := range q.Options() {
		shown[mapping[i].Index()] = text
	}
	return model.PresentedQuestion{
		ID:               q.ID,
		QuestionText:     q.QuestionText,
		OptionA:          shown[0],
		OptionB:          shown[1],
		OptionC:          shown[2],
		OptionD:          shown[3],
		IsMultipleChoice: q.IsMultipleChoice,
		Marks:            q.Marks,
	}
}

// Invert translates displayed letters back to canonical ones.
func Invert(mapping model.OptionMapping, displayed ...model.Letter) ([]model.Letter, error) {
	inv := mapping.Inverse()
	out := make([]model.Letter, 0, len(displayed))
	for _, d := range displayed {
		c, ok := inv[d]
		if !ok {
			return nil, fmt.Errorf("%w: unknown option letter %q", ErrInvalidPayload, d)
		}
		out = append(out, c)
	}
	return out, nil
}
