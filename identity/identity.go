// Package identity defines the durable user-identity contract of the login
// flow: a user record keyed by the identity provider's stable subject, and a
// store exposing exactly the two operations the flow consumes: lookup by
// subject and atomic upsert by subject.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by FindBySubject when no user has the subject.
var ErrNotFound = errors.New("identity: user not found")

// User is a durable local identity.
//
// Subject is the provider's stable identifier and is unique across users.
// Email may be empty: not every provider discloses one. Records are created
// on first login and refreshed on every return visit; the login flow never
// deletes them.
type User struct {
	ID        string
	Subject   string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile carries the mutable display fields refreshed on each login.
type Profile struct {
	Name  string
	Email string
}

// Store is the identity persistence contract.
//
// Upsert must be atomic with respect to the subject uniqueness constraint:
// two concurrent calls for the same subject must converge on a single record
// (conflict treated as update), never error out or duplicate.
type Store interface {
	// FindBySubject returns the user with the given provider subject, or
	// ErrNotFound.
	FindBySubject(ctx context.Context, subject string) (User, error)
	// Upsert creates the user for subject if absent, otherwise refreshes
	// the profile fields and UpdatedAt. It returns the resulting record.
	Upsert(ctx context.Context, subject string, profile Profile) (User, error)
}
