package federation

import (
	"context"
	"errors"

	"github.com/lifeapp/authbridge/identity"
)

// placeholderName is used when the provider discloses no display name.
const placeholderName = "Unnamed user"

// Reconciler maps provider subjects to local user records.
type Reconciler struct {
	store identity.Store
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store identity.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile upserts the user record for claims.Subject: created on first
// sight, display fields refreshed on return visits. Missing optional claims
// never fail reconciliation; the record falls back to a placeholder name
// and a null email. The store's uniqueness constraint makes concurrent
// callbacks for one subject converge on a single record.
func (r *Reconciler) Reconcile(ctx context.Context, claims Claims) (identity.User, *FlowError) {
	if claims.Subject == "" {
		return identity.User{}, flowErr(KindPersistenceError, errors.New("empty subject"))
	}
	name := claims.Name
	if name == "" {
		name = placeholderName
	}
	user, err := r.store.Upsert(ctx, claims.Subject, identity.Profile{Name: name, Email: claims.Email})
	if err != nil {
		return identity.User{}, flowErr(KindPersistenceError, err)
	}
	return user, nil
}
