// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account.
//
// Accounts are created either by registration (email + password) or by the
// first GitHub sign-in. GitHubID is nil for password-only accounts; the
// UNIQUE constraint on github_id in the DB maps one GitHub account to
// exactly one row.
//
// Avatar holds the storage key of the uploaded image, not a URL. Handlers
// turn it into a URL through the image store before responding.
//
// IsSubscribed is not stored. It is computed per requester and is always
// false for anonymous requests and for a user looking at themselves.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Avatar       string    `json:"avatar"`
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"-"`
	IsSubscribed bool      `json:"is_subscribed"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// Subscription is an author the requester follows, with a slice of the
// author's recipes and the total number of recipes they have published.
type Subscription struct {
	User
	Recipes      []RecipeShort `json:"recipes"`
	RecipesCount int           `json:"recipes_count"`
}
