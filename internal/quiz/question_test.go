package quiz_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/quiz"
)

func TestParseQuestions(t *testing.T) {
	content := `[
		{"id": "q1", "type": "multiple-choice", "question": "Pick B",
		 "options": ["A", "B", "C"], "correctAnswer": 1, "points": 2, "explanation": "B is second"},
		{"id": 7, "type": "multiple_choice", "question": "Pick by value",
		 "options": [{"id": "x", "text": "Yes"}, {"id": 2, "text": "No"}], "correctAnswer": "No"},
		{"id": "tf", "type": "true-false", "question": "Sky is blue", "correctAnswer": true},
		{"id": "open", "type": "text", "question": "6 x 7?", "correctAnswer": 42}
	]`

	questions, err := quiz.ParseQuestions([]byte(content))
	if err != nil {
		t.Fatalf("ParseQuestions() error = %v", err)
	}
	if len(questions) != 4 {
		t.Fatalf("len = %d, want 4", len(questions))
	}

	q1 := questions[0]
	if q1.Kind != quiz.KindMultipleChoice {
		t.Errorf("q1.Kind = %q, want multiple_choice", q1.Kind)
	}
	if !q1.Correct.IsIndex || q1.Correct.Index != 1 {
		t.Errorf("q1.Correct = %+v, want index 1", q1.Correct)
	}
	if q1.Points != 2 {
		t.Errorf("q1.Points = %v, want 2", q1.Points)
	}

	q2 := questions[1]
	if q2.ID != "7" {
		t.Errorf("q2.ID = %q, want 7", q2.ID)
	}
	if q2.Options[1].ID != "2" || q2.Options[1].Text != "No" {
		t.Errorf("q2.Options[1] = %+v, want {2 No}", q2.Options[1])
	}
	if q2.Correct.IsIndex || q2.Correct.Value != "No" {
		t.Errorf("q2.Correct = %+v, want value No", q2.Correct)
	}
	if q2.Points != 1 {
		t.Errorf("q2.Points = %v, want default 1", q2.Points)
	}

	tf := questions[2]
	if tf.Kind != quiz.KindTrueFalse {
		t.Errorf("tf.Kind = %q, want true_false", tf.Kind)
	}
	if len(tf.Options) != 2 {
		t.Errorf("tf has %d options, want 2", len(tf.Options))
	}
	if tf.Correct.Value != "True" {
		t.Errorf("tf.Correct.Value = %q, want True", tf.Correct.Value)
	}

	open := questions[3]
	if open.Kind != quiz.KindFreeForm {
		t.Errorf("open.Kind = %q, want free_form", open.Kind)
	}
	if open.Correct.Value != "42" {
		t.Errorf("open.Correct.Value = %q, want 42", open.Correct.Value)
	}
}

func TestParseQuestions_InfersKind(t *testing.T) {
	content := `[
		{"id": "a", "question": "with options", "options": ["x", "y"], "correctAnswer": 0},
		{"id": "b", "question": "without options", "correctAnswer": "z"}
	]`

	questions, err := quiz.ParseQuestions([]byte(content))
	if err != nil {
		t.Fatalf("ParseQuestions() error = %v", err)
	}
	if questions[0].Kind != quiz.KindMultipleChoice {
		t.Errorf("a.Kind = %q, want multiple_choice", questions[0].Kind)
	}
	if questions[1].Kind != quiz.KindFreeForm {
		t.Errorf("b.Kind = %q, want free_form", questions[1].Kind)
	}
}

func TestParseQuestions_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `not json`},
		{"not a list", `{"id": "q1"}`},
		{"missing id", `[{"question": "no id"}]`},
		{"empty question", `[{"id": "q1", "question": ""}]`},
		{"bad option", `[{"id": "q1", "question": "q", "options": [{"id": "x"}]}]`},
		{"negative points", `[{"id": "q1", "question": "q", "points": -1}]`},
		{"duplicate id", `[{"id": "q1", "question": "a"}, {"id": "q1", "question": "b"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := quiz.ParseQuestions([]byte(tt.content))
			if err == nil {
				t.Fatal("ParseQuestions() should return error")
			}
			var perr *quiz.ParseError
			if !errors.As(err, &perr) {
				t.Errorf("error %v is not a *ParseError", err)
			}
		})
	}
}
