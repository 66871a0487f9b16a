package bank

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/interviewer/internal/model"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	b, err := Load("", LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Len() == 0 {
		t.Fatal("embedded bank is empty")
	}
	q, ok := b.At(0)
	if !ok {
		t.Fatal("At(0) failed")
	}
	if q.ID == 0 || q.Prompt == "" {
		t.Errorf("first question incomplete: %+v", q)
	}
	if len(q.ExpectedConcepts) == 0 {
		t.Errorf("first question has no expected concepts: %+v", q)
	}
}

func TestLoadFromFile(t *testing.T) {
	questions := []model.Question{
		{ID: 10, Prompt: "custom question", Difficulty: model.DifficultyHard},
	}
	data, err := json.Marshal(questions)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	b, err := Load(path, LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("len = %d, want 1", b.Len())
	}
	q, _ := b.At(0)
	if q.ID != 10 {
		t.Errorf("id = %d, want 10", q.ID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json"), LoadOptions{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadDifficultyFilter(t *testing.T) {
	b, err := Load("", LoadOptions{Difficulty: "medium"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i := 0; i < b.Len(); i++ {
		q, _ := b.At(i)
		if q.Difficulty != model.DifficultyMedium {
			t.Errorf("question %d difficulty = %q, want medium", q.ID, q.Difficulty)
		}
	}

	if _, err := Load("", LoadOptions{Difficulty: "impossible"}); err == nil {
		t.Error("expected error when no questions match")
	}
}

func TestLoadLimit(t *testing.T) {
	b, err := Load("", LoadOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Len() != 2 {
		t.Errorf("len = %d, want 2", b.Len())
	}
}

func TestAtAndByIDBounds(t *testing.T) {
	b := New([]model.Question{{ID: 7, Prompt: "only one"}})

	if _, ok := b.At(-1); ok {
		t.Error("At(-1) should fail")
	}
	if _, ok := b.At(1); ok {
		t.Error("At(1) should fail on a one-question bank")
	}
	if q, ok := b.At(0); !ok || q.ID != 7 {
		t.Errorf("At(0) = %+v, %v", q, ok)
	}
	if q, ok := b.ByID(7); !ok || q.Prompt != "only one" {
		t.Errorf("ByID(7) = %+v, %v", q, ok)
	}
	if _, ok := b.ByID(999); ok {
		t.Error("ByID(999) should fail")
	}
}
