package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/quiz"
)

const quizContentSuffix = ".quiz.json"

// Load walks rootDir and builds a catalog from its YAML documents and quiz
// content files. Invalid files are skipped with a warning.
func Load(rootDir string) (*Catalog, error) {
	c := New()
	l := &loader{
		catalog: c,
		quizzes: make(map[string]QuizDocument),
		content: make(map[string][]quiz.Question),
		dirs:    make(map[string]string),
	}

	if err := filepath.Walk(rootDir, l.visit); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	l.assembleQuizzes()

	slog.Info("catalog loaded",
		"courses", len(c.courses),
		"trainings", len(c.trainings),
		"quizzes", len(c.quizzes),
	)
	return c, nil
}

type loader struct {
	catalog *Catalog
	quizzes map[string]QuizDocument
	content map[string][]quiz.Question // keyed by absolute content path
	dirs    map[string]string          // quiz ID -> directory of its YAML
}

func (l *loader) visit(path string, info os.FileInfo, err error) error {
	if err != nil || info.IsDir() {
		return nil
	}

	switch {
	case strings.HasSuffix(path, quizContentSuffix):
		return l.loadQuizContent(path)
	case strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml"):
		return l.loadDocument(path)
	}
	return nil
}

func (l *loader) loadDocument(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
		return nil
	}

	for _, course := range doc.Courses {
		if course.ID == "" {
			slog.Warn("skipping course without id", "path", path)
			continue
		}
		l.catalog.AddCourse(course)
	}
	for _, def := range doc.Trainings {
		if def.ID == "" {
			slog.Warn("skipping training without id", "path", path)
			continue
		}
		l.catalog.AddTraining(def)
	}
	for _, q := range doc.Quizzes {
		if q.ID == "" {
			slog.Warn("skipping quiz without id", "path", path)
			continue
		}
		l.quizzes[q.ID] = q
		l.dirs[q.ID] = filepath.Dir(path)
	}
	return nil
}

func (l *loader) loadQuizContent(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	questions, err := quiz.ParseQuestions(data)
	if err != nil {
		slog.Warn("skipping invalid quiz content", "path", path, "error", err)
		return nil
	}
	l.content[filepath.Clean(path)] = questions
	return nil
}

// assembleQuizzes pairs quiz settings with their content. Content files
// without settings become quizzes with default settings.
func (l *loader) assembleQuizzes() {
	used := make(map[string]bool)

	for id, doc := range l.quizzes {
		name := doc.Content
		if name == "" {
			name = id + quizContentSuffix
		}
		path := filepath.Clean(filepath.Join(l.dirs[id], name))

		questions, ok := l.content[path]
		if !ok {
			slog.Warn("quiz has no content", "quiz_id", id, "path", path)
		}
		used[path] = true

		l.catalog.AddQuiz(progress.QuizDefinition{
			ID:              id,
			Title:           doc.Title,
			PassingScore:    doc.PassingScore,
			QuestionsToShow: doc.QuestionsToShow,
			Questions:       questions,
		})
	}

	for path, questions := range l.content {
		if used[path] {
			continue
		}
		id := strings.TrimSuffix(filepath.Base(path), quizContentSuffix)
		if _, exists := l.quizzes[id]; exists {
			continue
		}
		l.catalog.AddQuiz(progress.QuizDefinition{ID: id, Questions: questions})
	}
}
