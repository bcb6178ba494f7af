package quiz

// Result is the outcome of grading one submission.
type Result struct {
	Earned   float64 `json:"earned"`
	Possible float64 `json:"possible"`
	Percent  float64 `json:"percent"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
}

// Passed reports whether the percentage reaches passingScore.
func (r Result) Passed(passingScore float64) bool {
	return r.Total > 0 && r.Percent >= passingScore
}

// Grade scores answers keyed by question id against the randomized view the
// learner was shown. Choice answers may be an option id or the option text;
// free-form answers are compared after normalization.
func Grade(questions []RandomizedQuestion, answers map[string]string) Result {
	var r Result
	for _, q := range questions {
		r.Total++
		r.Possible += q.Points

		given, ok := answers[q.ID]
		if !ok {
			continue
		}
		if isCorrect(q, given) {
			r.Correct++
			r.Earned += q.Points
		}
	}
	if r.Possible > 0 {
		r.Percent = r.Earned / r.Possible * 100
	}
	return r
}

func isCorrect(q RandomizedQuestion, given string) bool {
	if len(q.Options) > 0 {
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return false
		}
		correct := q.Options[q.CorrectIndex]
		return given == correct.ID || normalize(given) == normalize(correct.Text)
	}
	return q.CorrectValue != "" && normalize(given) == normalize(q.CorrectValue)
}
