package federation

import (
	"context"
	"errors"
	"testing"

	"github.com/lifeapp/authbridge/identity"
)

type failingStore struct{ err error }

func (f *failingStore) FindBySubject(context.Context, string) (identity.User, error) {
	return identity.User{}, f.err
}

func (f *failingStore) Upsert(context.Context, string, identity.Profile) (identity.User, error) {
	return identity.User{}, f.err
}

func TestReconcileCreatesAndRefreshes(t *testing.T) {
	store := identity.NewMemStore()
	rec := NewReconciler(store)
	ctx := context.Background()

	first, ferr := rec.Reconcile(ctx, Claims{Subject: "sub-1", Name: "Ada", Email: "ada@example.com"})
	if ferr != nil {
		t.Fatalf("Reconcile: %v", ferr)
	}
	if first.Subject != "sub-1" || first.Name != "Ada" || first.Email != "ada@example.com" {
		t.Errorf("unexpected user: %+v", first)
	}

	second, ferr := rec.Reconcile(ctx, Claims{Subject: "sub-1", Name: "Ada L.", Email: "ada@example.com"})
	if ferr != nil {
		t.Fatalf("Reconcile: %v", ferr)
	}
	if second.ID != first.ID {
		t.Errorf("returning user got a new ID: %q != %q", second.ID, first.ID)
	}
	if second.Name != "Ada L." {
		t.Errorf("profile not refreshed: %+v", second)
	}
}

func TestReconcileMissingOptionalClaims(t *testing.T) {
	rec := NewReconciler(identity.NewMemStore())
	user, ferr := rec.Reconcile(context.Background(), Claims{Subject: "sub-2"})
	if ferr != nil {
		t.Fatalf("Reconcile: %v", ferr)
	}
	if user.Name != placeholderName {
		t.Errorf("Name = %q, want placeholder", user.Name)
	}
	if user.Email != "" {
		t.Errorf("Email = %q, want empty", user.Email)
	}
}

func TestReconcileEmptySubject(t *testing.T) {
	rec := NewReconciler(identity.NewMemStore())
	_, ferr := rec.Reconcile(context.Background(), Claims{Name: "No Subject"})
	if ferr == nil || ferr.Kind != KindPersistenceError {
		t.Fatalf("expected persistence error, got %v", ferr)
	}
}

func TestReconcileStoreFailure(t *testing.T) {
	sentinel := errors.New("disk on fire")
	rec := NewReconciler(&failingStore{err: sentinel})
	_, ferr := rec.Reconcile(context.Background(), Claims{Subject: "sub-3", Name: "X"})
	if ferr == nil || ferr.Kind != KindPersistenceError {
		t.Fatalf("expected persistence error, got %v", ferr)
	}
	if !errors.Is(ferr, sentinel) {
		t.Error("store error not wrapped")
	}
}
