package session

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestFinalStorePutIsWriteOnce(t *testing.T) {
	s := NewFinalStore()
	id := uuid.New()

	first := FinalRecipe{Name: "김치찌개", Content: "레시피 본문", ImagePrompt: "prompt"}
	stored, created := s.Put(id, first)
	if !created {
		t.Error("first Put() created = false")
	}
	if stored != first {
		t.Errorf("first Put() stored = %+v, want %+v", stored, first)
	}

	second := FinalRecipe{Name: "된장찌개", Content: "다른 본문"}
	stored, created = s.Put(id, second)
	if created {
		t.Error("second Put() created = true, want false")
	}
	if stored != first {
		t.Errorf("second Put() returned %+v, want original %+v", stored, first)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != first {
		t.Errorf("Get() = %+v, want original record %+v", got, first)
	}
}

func TestFinalStoreGetUnknown(t *testing.T) {
	s := NewFinalStore()
	if _, err := s.Get(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestFinalStoreDelete(t *testing.T) {
	s := NewFinalStore()
	id := uuid.New()

	s.Put(id, FinalRecipe{Name: "김치찌개"})
	s.Delete(id)

	if _, err := s.Get(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	// Deleting a missing record is a no-op.
	s.Delete(uuid.New())
}
