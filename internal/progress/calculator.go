package progress

import "math"

// Weights is the policy for splitting a training's 100 points between its
// components. Only components present on the training take part; each gets
// weight/sum(present weights) of the total.
type Weights struct {
	Video     float64
	Quiz      float64
	MiniUnits float64
}

// DefaultWeights gives every present component an equal share.
var DefaultWeights = Weights{Video: 1, Quiz: 1, MiniUnits: 1}

// TrainingState is the raw signal state for one learner in one training.
// The mini-unit total always comes from the definition.
type TrainingState struct {
	WatchedSeconds     int
	VideoCompleted     bool
	QuizCompleted      bool
	MiniUnitsCompleted int
}

// TrainingResult is the derived progress of a training.
type TrainingResult struct {
	VideoProgress  int
	Progress       int
	IsCompleted    bool
	TotalMiniUnits int
}

// CalculateTrainingProgress applies DefaultWeights.
func CalculateTrainingProgress(state TrainingState, def TrainingDefinition) TrainingResult {
	return DefaultWeights.Calculate(state, def)
}

// Calculate derives progress from state. It is a pure function.
//
// Video contributes in proportion to watched/required seconds, capped at its
// share. The quiz contributes its full share once passed. Mini-units
// contribute completed/total of their share. IsCompleted holds exactly when
// every present component is satisfied, and Progress is 100 only then.
func (w Weights) Calculate(state TrainingState, def TrainingDefinition) TrainingResult {
	total := len(def.MiniUnitIDs)
	res := TrainingResult{TotalMiniUnits: total}

	videoRatio := watchRatio(state, def)
	if def.HasVideo {
		res.VideoProgress = int(math.Round(videoRatio * 100))
	}

	var sum float64
	if def.HasVideo {
		sum += w.Video
	}
	if def.HasQuiz {
		sum += w.Quiz
	}
	if total > 0 {
		sum += w.MiniUnits
	}
	if sum <= 0 {
		return res
	}

	satisfied := true
	var score float64

	if def.HasVideo {
		score += w.Video / sum * videoRatio
		satisfied = satisfied && videoRatio >= 1
	}
	if def.HasQuiz {
		if state.QuizCompleted {
			score += w.Quiz / sum
		} else {
			satisfied = false
		}
	}
	if total > 0 {
		done := min(max(state.MiniUnitsCompleted, 0), total)
		score += w.MiniUnits / sum * float64(done) / float64(total)
		satisfied = satisfied && done == total
	}

	p := int(math.Round(score * 100))
	p = min(max(p, 0), 100)
	if !satisfied && p == 100 {
		p = 99
	}
	if satisfied {
		p = 100
	}

	res.Progress = p
	res.IsCompleted = satisfied
	return res
}

func watchRatio(state TrainingState, def TrainingDefinition) float64 {
	if state.VideoCompleted {
		return 1
	}
	required := def.RequiredWatchSeconds()
	if required <= 0 || state.WatchedSeconds <= 0 {
		return 0
	}
	return math.Min(float64(state.WatchedSeconds)/float64(required), 1)
}
