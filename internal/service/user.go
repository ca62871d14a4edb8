package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/auth"
	"github.com/sakif/foodgram/internal/imagedata"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
	"github.com/sakif/foodgram/internal/storage"
	"github.com/sakif/foodgram/internal/validation"
)

const avatarPrefix = "users"

// reservedUsername collides with the /users/me/ route.
const reservedUsername = "me"

// RegisterInput is the body of a sign-up request.
type RegisterInput struct {
	Email     string `json:"email"      validate:"required,email,max=254"`
	Username  string `json:"username"   validate:"required,max=150,username"`
	FirstName string `json:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name"  validate:"required,max=150"`
	Password  string `json:"password"   validate:"required,min=8,max=72"`
}

// SetPasswordInput is the body of a password change.
type SetPasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=72"`
}

// UserService manages accounts, avatars and subscriptions.
type UserService struct {
	users     repository.UserRepository
	recipes   repository.RecipeRepository
	subs      repository.SubscriptionRepository
	passwords *auth.PasswordService
	images    storage.ImageStore
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	recipes repository.RecipeRepository,
	subs repository.SubscriptionRepository,
	passwords *auth.PasswordService,
	images storage.ImageStore,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		recipes:   recipes,
		subs:      subs,
		passwords: passwords,
		images:    images,
		logger:    logger,
	}
}

// Register creates a password account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if strings.EqualFold(in.Username, reservedUsername) {
		return nil, apperror.ValidationFailed("username", fmt.Sprintf("username %q is reserved", in.Username))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{
		Email:        in.Email,
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.Int64("id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Get returns a user with is_subscribed computed for viewerID.
// A user looking at themselves, or an anonymous viewer, sees false.
func (s *UserService) Get(ctx context.Context, viewerID, id int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if viewerID > 0 && viewerID != id {
		user.IsSubscribed, err = s.subs.Exists(ctx, viewerID, id)
		if err != nil {
			return nil, fmt.Errorf("checking subscription: %w", err)
		}
	}
	return user, nil
}

// List returns users by limit/offset, oldest account first.
func (s *UserService) List(ctx context.Context, viewerID int64, limit, offset int) (*model.Page[model.User], error) {
	if offset < 0 {
		offset = 0
	}
	opts := repository.ListOptions{Limit: ClampLimit(limit), Offset: offset}

	users, total, err := s.users.List(ctx, viewerID, opts)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return &model.Page[model.User]{Items: users, Count: total}, nil
}

// SetPassword replaces the password after checking the current one.
func (s *UserService) SetPassword(ctx context.Context, userID int64, in SetPasswordInput) error {
	if err := validation.Struct(&in); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.passwords.Verify(user.PasswordHash, in.CurrentPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) || user.PasswordHash == "" {
			return apperror.ValidationFailed("current_password", "current password is incorrect")
		}
		return fmt.Errorf("verifying password: %w", err)
	}

	hash, err := s.passwords.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.logger.Info("password changed", slog.Int64("id", userID))
	return nil
}

// SetAvatar stores a new avatar from a data URI and deletes the old one.
// It returns the new storage key.
func (s *UserService) SetAvatar(ctx context.Context, userID int64, dataURI string) (string, error) {
	if strings.TrimSpace(dataURI) == "" {
		return "", apperror.ValidationFailed("avatar", "avatar is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	img, err := imagedata.Decode("avatar", dataURI)
	if err != nil {
		return "", err
	}
	key, err := s.images.Save(ctx, avatarPrefix, img)
	if err != nil {
		return "", fmt.Errorf("saving avatar: %w", err)
	}

	if err := s.users.UpdateAvatar(ctx, userID, key); err != nil {
		s.discardImage(ctx, key)
		return "", err
	}
	s.discardImage(ctx, user.Avatar)

	return key, nil
}

// DeleteAvatar clears the avatar. Having none is a validation error.
func (s *UserService) DeleteAvatar(ctx context.Context, userID int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Avatar == "" {
		return apperror.ValidationFailed("avatar", "no avatar to delete")
	}

	if err := s.users.UpdateAvatar(ctx, userID, ""); err != nil {
		return err
	}
	s.discardImage(ctx, user.Avatar)
	return nil
}

// Subscribe makes userID follow authorID and returns the author as a
// subscription entry with up to recipesLimit recipes (all when <= 0).
func (s *UserService) Subscribe(ctx context.Context, userID, authorID int64, recipesLimit int) (*model.Subscription, error) {
	if userID == authorID {
		return nil, apperror.ValidationFailed("author", "cannot subscribe to yourself")
	}

	author, err := s.users.GetByID(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if err := s.subs.Add(ctx, userID, authorID); err != nil {
		return nil, err
	}

	s.logger.Info("subscribed",
		slog.Int64("user", userID),
		slog.Int64("author", authorID),
	)

	author.IsSubscribed = true
	return s.subscription(ctx, *author, recipesLimit)
}

func (s *UserService) Unsubscribe(ctx context.Context, userID, authorID int64) error {
	if _, err := s.users.GetByID(ctx, authorID); err != nil {
		return err
	}
	return s.subs.Remove(ctx, userID, authorID)
}

// Subscriptions lists the authors userID follows, one page at a time.
func (s *UserService) Subscriptions(ctx context.Context, userID int64, page, limit, recipesLimit int) (*model.Page[model.Subscription], error) {
	authors, total, err := s.subs.ListAuthors(ctx, userID, pageOptions(page, limit))
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}

	items := make([]model.Subscription, 0, len(authors))
	for _, author := range authors {
		sub, err := s.subscription(ctx, author, recipesLimit)
		if err != nil {
			return nil, err
		}
		items = append(items, *sub)
	}
	return &model.Page[model.Subscription]{Items: items, Count: total}, nil
}

func (s *UserService) subscription(ctx context.Context, author model.User, recipesLimit int) (*model.Subscription, error) {
	recipes, err := s.recipes.ListShort(ctx, author.ID, recipesLimit)
	if err != nil {
		return nil, fmt.Errorf("loading recipes of user %d: %w", author.ID, err)
	}
	count, err := s.recipes.CountByAuthor(ctx, author.ID)
	if err != nil {
		return nil, fmt.Errorf("counting recipes of user %d: %w", author.ID, err)
	}

	return &model.Subscription{
		User:         author,
		Recipes:      recipes,
		RecipesCount: count,
	}, nil
}

func (s *UserService) discardImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete image",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
