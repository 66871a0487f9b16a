// Package bank holds the ordered, immutable question bank loaded once at
// process start.
package bank

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/pavelanni/interviewer/internal/model"
)

//go:embed questions.json
var defaultQuestions []byte

// Bank is a read-only ordered list of questions. It requires no
// synchronization: the slice is never mutated after construction.
type Bank struct {
	questions []model.Question
}

// LoadOptions shape the bank at construction time.
type LoadOptions struct {
	Difficulty string // empty means all difficulties
	Limit      int    // 0 means all matching questions
	Shuffle    bool
}

// Load reads questions from the given JSON file, or the embedded default
// set when path is empty, and applies the options.
func Load(path string, opts LoadOptions) (*Bank, error) {
	data := defaultQuestions
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read questions file: %w", err)
		}
	}

	var questions []model.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}

	if opts.Difficulty != "" {
		filtered := questions[:0:0]
		for _, q := range questions {
			if q.Difficulty == model.Difficulty(opts.Difficulty) {
				filtered = append(filtered, q)
			}
		}
		questions = filtered
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("no questions match the configured filters")
	}

	if opts.Shuffle {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}

	if opts.Limit > 0 && opts.Limit < len(questions) {
		questions = questions[:opts.Limit]
	}

	return &Bank{questions: questions}, nil
}

// New builds a bank directly from a question slice. Used by tests.
func New(questions []model.Question) *Bank {
	return &Bank{questions: questions}
}

// Len returns the number of questions in the bank.
func (b *Bank) Len() int {
	return len(b.questions)
}

// At returns the question at the given 0-based index.
func (b *Bank) At(index int) (model.Question, bool) {
	if index < 0 || index >= len(b.questions) {
		return model.Question{}, false
	}
	return b.questions[index], true
}

// ByID returns the question with the given id.
func (b *Bank) ByID(id int64) (model.Question, bool) {
	for _, q := range b.questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.Question{}, false
}
