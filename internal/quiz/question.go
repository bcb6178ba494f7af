// Package quiz parses quiz content and builds deterministic per-attempt views
// of it.
package quiz

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Kind discriminates the question variants.
type Kind string

const (
	KindMultipleChoice Kind = "multiple_choice"
	KindTrueFalse      Kind = "true_false"
	KindFreeForm       Kind = "free_form"
)

// Option is one choice of a choice question.
type Option struct {
	ID   string
	Text string
}

// Answer is the correct answer as authored: either an option index or a value.
type Answer struct {
	Index   int
	Value   string
	IsIndex bool
}

// Question is a parsed question. Options are only set for choice kinds.
type Question struct {
	ID          string
	Kind        Kind
	Text        string
	Options     []Option
	Correct     Answer
	Points      float64
	Explanation string
}

// IsChoice reports whether the learner picks from an option list.
func (q Question) IsChoice() bool {
	return q.Kind == KindMultipleChoice || q.Kind == KindTrueFalse
}

// correctIndex resolves the authored answer to an option index, or -1.
func (q Question) correctIndex() int {
	if q.Correct.IsIndex {
		if q.Correct.Index >= 0 && q.Correct.Index < len(q.Options) {
			return q.Correct.Index
		}
		return -1
	}
	want := normalize(q.Correct.Value)
	for i, opt := range q.Options {
		if normalize(opt.Text) == want {
			return i
		}
	}
	return -1
}

// ParseError reports quiz content that does not match the wire format.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed quiz content: %s: %v", e.Reason, e.Err)
	}
	return "malformed quiz content: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type wireQuestion struct {
	ID            json.RawMessage   `json:"id"`
	Type          string            `json:"type"`
	Question      string            `json:"question"`
	Options       []json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage   `json:"correctAnswer"`
	Points        *float64          `json:"points"`
	Explanation   string            `json:"explanation"`
}

type wireOption struct {
	ID   json.RawMessage `json:"id"`
	Text string          `json:"text"`
}

// ParseQuestions decodes serialized quiz content. Any structural problem is
// returned as a *ParseError.
func ParseQuestions(data []byte) ([]Question, error) {
	if err := validateContent(data); err != nil {
		return nil, err
	}

	var wire []wireQuestion
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &ParseError{Reason: "decode questions", Err: err}
	}

	questions := make([]Question, 0, len(wire))
	seen := make(map[string]bool, len(wire))
	for i, w := range wire {
		q, err := w.toQuestion()
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("question %d", i), Err: err}
		}
		if seen[q.ID] {
			return nil, &ParseError{Reason: fmt.Sprintf("duplicate question id %q", q.ID)}
		}
		seen[q.ID] = true
		questions = append(questions, q)
	}
	return questions, nil
}

func (w wireQuestion) toQuestion() (Question, error) {
	id, err := rawScalar(w.ID)
	if err != nil || id == "" {
		return Question{}, fmt.Errorf("invalid id")
	}

	q := Question{
		ID:          id,
		Text:        w.Question,
		Points:      1,
		Explanation: w.Explanation,
	}
	if w.Points != nil {
		q.Points = *w.Points
	}

	for i, raw := range w.Options {
		opt, err := parseOption(raw)
		if err != nil {
			return Question{}, fmt.Errorf("option %d: %w", i, err)
		}
		q.Options = append(q.Options, opt)
	}

	q.Kind = kindOf(w.Type, len(q.Options) > 0)
	if q.Kind == KindTrueFalse && len(q.Options) == 0 {
		q.Options = []Option{{Text: "True"}, {Text: "False"}}
	}
	if q.Kind == KindFreeForm {
		q.Options = nil
	}

	answer, err := parseAnswer(w.CorrectAnswer, q.Kind)
	if err != nil {
		return Question{}, err
	}
	q.Correct = answer
	return q, nil
}

func kindOf(raw string, hasOptions bool) Kind {
	t := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
	switch t {
	case "multiple_choice", "mcq", "single_choice", "choice":
		return KindMultipleChoice
	case "true_false", "boolean":
		return KindTrueFalse
	case "text", "short_answer", "free_form", "fill_blank", "essay":
		return KindFreeForm
	}
	if hasOptions {
		return KindMultipleChoice
	}
	return KindFreeForm
}

func parseOption(raw json.RawMessage) (Option, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return Option{Text: text}, nil
	}
	var w wireOption
	if err := json.Unmarshal(raw, &w); err != nil {
		return Option{}, err
	}
	id, err := rawScalar(w.ID)
	if err != nil {
		return Option{}, err
	}
	return Option{ID: id, Text: w.Text}, nil
}

func parseAnswer(raw json.RawMessage, kind Kind) (Answer, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Answer{Index: -1, IsIndex: kind != KindFreeForm}, nil
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if kind == KindTrueFalse {
			if b {
				return Answer{Value: "True"}, nil
			}
			return Answer{Value: "False"}, nil
		}
		return Answer{Value: strconv.FormatBool(b)}, nil
	}

	var n json.Number
	if raw[0] != '"' && kind != KindFreeForm && json.Unmarshal(raw, &n) == nil {
		i, err := n.Int64()
		if err != nil {
			return Answer{}, fmt.Errorf("correct answer index %s: %w", n, err)
		}
		return Answer{Index: int(i), IsIndex: true}, nil
	}

	v, err := rawScalar(raw)
	if err != nil {
		return Answer{}, fmt.Errorf("correct answer: %w", err)
	}
	return Answer{Value: v}, nil
}

// rawScalar renders a JSON string or number as a string.
func rawScalar(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// normalize makes answer values comparable across Unicode forms and case.
func normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
