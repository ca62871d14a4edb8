package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

// newTestDB returns a fresh in-memory database that is closed when the test
// ends. Every test gets its own schema.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Email:        username + "@example.com",
		Username:     username,
		FirstName:    "First",
		LastName:     "Last",
		PasswordHash: "hash",
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Email:    "cook@example.com",
		Username: "cook",
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == 0 {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "first")

	dup := &model.User{Email: "first@example.com", Username: "second"}
	err := db.Users().Create(context.Background(), dup)

	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Create() error = %v, want ErrValidation", err)
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Field != "email" {
		t.Errorf("Field = %q, want %q", appErr.Field, "email")
	}
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "taken")

	dup := &model.User{Email: "other@example.com", Username: "taken"}
	err := db.Users().Create(context.Background(), dup)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Field != "username" {
		t.Fatalf("Create() error = %v, want validation error on username", err)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestUserGetByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "lookup")

	found, err := db.Users().GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Username != "lookup" {
		t.Errorf("Username = %q, want %q", found.Username, "lookup")
	}
	if found.GitHubID != nil {
		t.Errorf("GitHubID = %v, want nil", *found.GitHubID)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Users().GetByID(context.Background(), 404)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetByEmail_IgnoresCase(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "mixed")

	found, err := db.Users().GetByEmail(context.Background(), "MIXED@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %d, want %d", found.ID, created.ID)
	}
}

// =========================================================================
// UPSERT TESTS
// =========================================================================

func TestUserUpsert_NewThenExisting(t *testing.T) {
	db := newTestDB(t)
	users := db.Users()
	githubID := int64(66666)

	first := &model.User{
		GitHubID:  &githubID,
		Email:     "gh@example.com",
		Username:  "octo",
		FirstName: "Old",
	}
	if err := users.Upsert(context.Background(), first); err != nil {
		t.Fatalf("Upsert() first login: %v", err)
	}

	second := &model.User{
		GitHubID:  &githubID,
		Email:     "changed@example.com",
		Username:  "octo-renamed",
		FirstName: "New",
	}
	if err := users.Upsert(context.Background(), second); err != nil {
		t.Fatalf("Upsert() second login: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("Upsert() changed user ID: got %d, want %d", second.ID, first.ID)
	}

	found, err := users.GetByGitHubID(context.Background(), githubID)
	if err != nil {
		t.Fatalf("GetByGitHubID() error = %v", err)
	}
	if found.FirstName != "New" {
		t.Errorf("FirstName = %q, want %q", found.FirstName, "New")
	}
	// Identity fields survive a re-login.
	if found.Email != "gh@example.com" || found.Username != "octo" {
		t.Errorf("identity changed: email=%q username=%q", found.Email, found.Username)
	}
}

// =========================================================================
// LIST / UPDATE TESTS
// =========================================================================

func TestUserList_PaginatesAndFlagsSubscriptions(t *testing.T) {
	db := newTestDB(t)
	viewer := createTestUser(t, db, "viewer")
	followed := createTestUser(t, db, "followed")
	createTestUser(t, db, "stranger")

	if err := db.Subscriptions().Add(context.Background(), viewer.ID, followed.ID); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	users, total, err := db.Users().List(context.Background(), viewer.ID, repository.ListOptions{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}
	if users[0].ID != followed.ID || !users[0].IsSubscribed {
		t.Errorf("users[0] = %+v, want followed user with IsSubscribed", users[0])
	}
	if users[1].IsSubscribed {
		t.Error("stranger should not be flagged as subscribed")
	}
}

func TestUserUpdateAvatar(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "avatar")

	if err := db.Users().UpdateAvatar(context.Background(), user.ID, "users/pic_1.png"); err != nil {
		t.Fatalf("UpdateAvatar() error = %v", err)
	}
	found, _ := db.Users().GetByID(context.Background(), user.ID)
	if found.Avatar != "users/pic_1.png" {
		t.Errorf("Avatar = %q, want %q", found.Avatar, "users/pic_1.png")
	}

	if err := db.Users().UpdatePassword(context.Background(), 999, "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdatePassword(missing) error = %v, want ErrNotFound", err)
	}
}
