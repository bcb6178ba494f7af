package catalog

import "github.com/p-n-ai/pai-academy/internal/progress"

// Document is one catalog YAML file. A file may carry any mix of sections.
type Document struct {
	Courses   []progress.CourseDefinition   `yaml:"courses"`
	Trainings []progress.TrainingDefinition `yaml:"trainings"`
	Quizzes   []QuizDocument                `yaml:"quizzes"`
}

// QuizDocument holds quiz settings. Questions live in a sibling
// "<id>.quiz.json" file, or in the file named by Content.
type QuizDocument struct {
	ID              string  `yaml:"id"`
	Title           string  `yaml:"title"`
	PassingScore    float64 `yaml:"passing_score"`
	QuestionsToShow int     `yaml:"questions_to_show"`
	Content         string  `yaml:"content"`
}
