package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemStoreFindMissing(t *testing.T) {
	s := NewMemStore()
	_, err := s.FindBySubject(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemStoreUpsert(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	created, err := s.Upsert(ctx, "sub-1", Profile{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if created.ID == "" || created.Subject != "sub-1" {
		t.Errorf("unexpected record: %+v", created)
	}

	updated, err := s.Upsert(ctx, "sub-1", Profile{Name: "Ada L."})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if updated.ID != created.ID {
		t.Error("upsert for an existing subject changed the ID")
	}
	if updated.Name != "Ada L." || updated.Email != "" {
		t.Errorf("profile not replaced: %+v", updated)
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Error("CreatedAt changed on update")
	}

	found, err := s.FindBySubject(ctx, "sub-1")
	if err != nil {
		t.Fatalf("FindBySubject: %v", err)
	}
	if found != updated {
		t.Errorf("FindBySubject = %+v, want %+v", found, updated)
	}
}

func TestMemStoreConcurrentUpsert(t *testing.T) {
	s := NewMemStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Upsert(context.Background(), "sub-race", Profile{Name: "Racer"}); err != nil {
				t.Errorf("Upsert: %v", err)
			}
		}()
	}
	wg.Wait()

	first, err := s.FindBySubject(context.Background(), "sub-race")
	if err != nil {
		t.Fatalf("FindBySubject: %v", err)
	}
	if first.Subject != "sub-race" {
		t.Errorf("unexpected record: %+v", first)
	}
}
