package quiz

import (
	"fmt"
	"log/slog"
	"slices"
)

// ShuffledOption is an option in its randomized position. OriginalIndex keeps
// the lineage back to the authored order.
type ShuffledOption struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	OriginalIndex int    `json:"original_index"`
}

// RandomizedQuestion is one question of a learner's attempt view.
// CorrectIndex points into Options; it is -1 for free-form questions.
type RandomizedQuestion struct {
	ID           string           `json:"id"`
	Kind         Kind             `json:"type"`
	Text         string           `json:"question"`
	Options      []ShuffledOption `json:"options,omitempty"`
	CorrectIndex int              `json:"correct_answer"`
	CorrectValue string           `json:"correct_value,omitempty"`
	Points       float64          `json:"points"`
	Explanation  string           `json:"explanation,omitempty"`
}

// PublicOption is an option as the learner sees it.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is the client-facing view without answers.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Kind    Kind           `json:"type"`
	Text    string         `json:"question"`
	Options []PublicOption `json:"options,omitempty"`
	Points  float64        `json:"points"`
}

// Randomize selects and orders questions for one learner attempt.
//
// The pool is shuffled with a seed derived from (learnerID, quizID, attempt).
// When questionsToShow is positive and smaller than the pool, only the first
// questionsToShow shuffled questions are kept. Multiple-choice options are
// shuffled with a per-question sub-seed and the correct answer is remapped to
// its new position. Identical inputs always produce an identical result.
func Randomize(pool []Question, questionsToShow int, learnerID, quizID string, attempt int) []RandomizedQuestion {
	base := AttemptSeed(learnerID, quizID, attempt)

	selected := slices.Clone(pool)
	shuffle(selected, NewGenerator(base))
	if questionsToShow > 0 && questionsToShow < len(selected) {
		selected = selected[:questionsToShow]
	}

	out := make([]RandomizedQuestion, 0, len(selected))
	for _, q := range selected {
		out = append(out, randomizeQuestion(q, base, quizID))
	}
	return out
}

// RandomizeRaw parses serialized quiz content and randomizes it. Malformed
// content yields an empty list.
func RandomizeRaw(content []byte, questionsToShow int, learnerID, quizID string, attempt int) []RandomizedQuestion {
	pool, err := ParseQuestions(content)
	if err != nil {
		slog.Warn("quiz content unusable, returning no questions",
			"quiz_id", quizID,
			"error", err,
		)
		return []RandomizedQuestion{}
	}
	return Randomize(pool, questionsToShow, learnerID, quizID, attempt)
}

func randomizeQuestion(q Question, base int64, quizID string) RandomizedQuestion {
	rq := RandomizedQuestion{
		ID:           q.ID,
		Kind:         q.Kind,
		Text:         q.Text,
		CorrectIndex: -1,
		Points:       q.Points,
		Explanation:  q.Explanation,
	}

	if !q.IsChoice() {
		rq.CorrectValue = q.Correct.Value
		return rq
	}

	order := make([]int, len(q.Options))
	for i := range order {
		order[i] = i
	}
	// True/false keeps its authored order.
	if q.Kind == KindMultipleChoice {
		shuffle(order, NewGenerator(base+HashSeed(q.ID)))
	}

	rq.Options = make([]ShuffledOption, len(order))
	for pos, orig := range order {
		opt := q.Options[orig]
		id := opt.ID
		if id == "" {
			id = fmt.Sprintf("%s-opt-%d", q.ID, orig)
		}
		rq.Options[pos] = ShuffledOption{ID: id, Text: opt.Text, OriginalIndex: orig}
	}

	rq.CorrectIndex = remapCorrect(q, rq.Options, quizID)
	if len(rq.Options) > 0 {
		rq.CorrectValue = rq.Options[rq.CorrectIndex].Text
	}
	return rq
}

// remapCorrect finds the shuffled position of the authored answer. A quiz with
// a broken answer must still be shown, so failures fall back to 0.
func remapCorrect(q Question, options []ShuffledOption, quizID string) int {
	orig := q.correctIndex()
	for pos, opt := range options {
		if orig >= 0 && opt.OriginalIndex == orig {
			return pos
		}
	}
	slog.Warn("correct answer not found after shuffle, defaulting to first option",
		"quiz_id", quizID,
		"question_id", q.ID,
		"authored_index", q.Correct.Index,
		"authored_value", q.Correct.Value,
	)
	return 0
}

// Public strips answers and explanations.
func Public(questions []RandomizedQuestion) []PublicQuestion {
	out := make([]PublicQuestion, 0, len(questions))
	for _, q := range questions {
		pq := PublicQuestion{
			ID:     q.ID,
			Kind:   q.Kind,
			Text:   q.Text,
			Points: q.Points,
		}
		for _, opt := range q.Options {
			pq.Options = append(pq.Options, PublicOption{ID: opt.ID, Text: opt.Text})
		}
		out = append(out, pq)
	}
	return out
}
