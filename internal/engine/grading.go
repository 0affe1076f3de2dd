package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-examcore/internal/model"
)

var hundred = decimal.NewFromInt(100)

// QuestionScore is the grading outcome of one question.
type QuestionScore struct {
	QuestionID uuid.UUID `json:"question_id"`
	Answered   bool      `json:"answered"`
	Correct    bool      `json:"correct"`
	Marks      float64   `json:"marks"`
	Awarded    float64   `json:"awarded"`
}

// Summary is the result of grading one submission.
type Summary struct {
	Score          int             `json:"score"`
	TotalQuestions int             `json:"total_questions"`
	ObtainedMarks  float64         `json:"obtained_marks"`
	TotalMarks     float64         `json:"total_marks"`
	Percentage     int             `json:"percentage"`
	PassPercentage int             `json:"pass_percentage"`
	Passed         bool            `json:"passed"`
	Questions      []QuestionScore `json:"questions"`
}

// Result turns the summary into the stored result row for an attempt.
func (s *Summary) Result(a *model.Attempt, submittedAt time.Time) *model.Result {
	return &model.Result{
		ExamID:         a.ExamID,
		StudentID:      a.StudentID,
		AttemptID:      a.ID,
		Score:          s.Score,
		TotalQuestions: s.TotalQuestions,
		ObtainedMarks:  s.ObtainedMarks,
		TotalMarks:     s.TotalMarks,
		Percentage:     s.Percentage,
		PassPercentage: s.PassPercentage,
		Passed:         s.Passed,
		SubmittedAt:    submittedAt,
	}
}

// Grade scores answers against the answer key. Answers are in displayed
// letters and are translated through each question's mapping before being
// compared. Every question counts toward the total marks whether answered or
// not; a multi-select question only earns its marks when the chosen set
// equals the correct set.
func Grade(questions []model.Question, mappings map[uuid.UUID]model.OptionMapping, answers []model.AnswerEntry, passPercentage int) (*Summary, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: exam has no questions", ErrInvalidPayload)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: no answers submitted", ErrInvalidPayload)
	}

	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		q := &questions[i]
		if q.IsMultipleChoice && len(q.CorrectOptions) == 0 {
			return nil, fmt.Errorf("%w: question %s has no correct options", ErrInvalidPayload, q.ID)
		}
		byID[q.ID] = q
	}

	picked := make(map[uuid.UUID]model.Selection, len(answers))
	for _, e := range answers {
		q, ok := byID[e.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown question %s", ErrInvalidPayload, e.QuestionID)
		}
		if _, dup := picked[e.QuestionID]; dup {
			return nil, fmt.Errorf("%w: question %s answered twice", ErrInvalidPayload, e.QuestionID)
		}
		if err := checkSelection(q, e.Selection); err != nil {
			return nil, err
		}
		picked[e.QuestionID] = e.Selection
	}

	sum := &Summary{
		TotalQuestions: len(questions),
		PassPercentage: passPercentage,
		Questions:      make([]QuestionScore, 0, len(questions)),
	}
	total, obtained := decimal.Zero, decimal.Zero

	for i := range questions {
		q := &questions[i]
		marks := decimal.NewFromFloat(q.Marks)
		total = total.Add(marks)

		qs := QuestionScore{QuestionID: q.ID, Marks: q.Marks}
		sel, answered := picked[q.ID]
		if answered {
			qs.Answered = true
			mapping, ok := mappings[q.ID]
			if !ok || !mapping.Valid() {
				return nil, fmt.Errorf("%w: no option mapping for answered question %s", ErrInconsistentState, q.ID)
			}
			canonical, err := Invert(mapping, sel.Letters...)
			if err != nil {
				return nil, err
			}
			if isCorrect(q, canonical) {
				qs.Correct = true
				qs.Awarded = q.Marks
				obtained = obtained.Add(marks)
				sum.Score++
			}
		}
		sum.Questions = append(sum.Questions, qs)
	}

	sum.TotalMarks = total.InexactFloat64()
	sum.ObtainedMarks = obtained.InexactFloat64()
	sum.Percentage = Percentage(obtained, total)
	sum.Passed = sum.Percentage >= passPercentage
	return sum, nil
}

// Percentage returns obtained/total as a whole percentage, rounding halves
// away from zero. A zero total yields zero.
func Percentage(obtained, total decimal.Decimal) int {
	if total.IsZero() {
		return 0
	}
	return int(obtained.Mul(hundred).Div(total).Round(0).IntPart())
}

func checkSelection(q *model.Question, sel model.Selection) error {
	want := model.SelectionSingle
	if q.IsMultipleChoice {
		want = model.SelectionMultiple
	}
	if sel.Kind != want {
		return fmt.Errorf("%w: question %s expects a %s selection, got %q", ErrInvalidPayload, q.ID, want, sel.Kind)
	}
	if len(sel.Letters) == 0 {
		return fmt.Errorf("%w: question %s has an empty selection", ErrInvalidPayload, q.ID)
	}
	if sel.Kind == model.SelectionSingle && len(sel.Letters) != 1 {
		return fmt.Errorf("%w: question %s accepts exactly one letter", ErrInvalidPayload, q.ID)
	}

	var seen [4]bool
	for _, l := range sel.Letters {
		i := l.Index()
		if i < 0 {
			return fmt.Errorf("%w: question %s has invalid letter %q", ErrInvalidPayload, q.ID, l)
		}
		if seen[i] {
			return fmt.Errorf("%w: question %s repeats letter %q", ErrInvalidPayload, q.ID, l)
		}
		seen[i] = true
	}
	return nil
}

func isCorrect(q *model.Question, canonical []model.Letter) bool {
	if !q.IsMultipleChoice {
		return len(canonical) == 1 && canonical[0] == q.CorrectOption
	}

	correct := make(map[model.Letter]struct{}, len(q.CorrectOptions))
	for _, l := range q.CorrectOptions {
		correct[l] = struct{}{}
	}
	if len(canonical) != len(correct) {
		return false
	}
	for _, l := range canonical {
		if _, ok := correct[l]; !ok {
			return false
		}
	}
	return true
}
