package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	appErrors "github.com/Novip1906/tasks-live/internal/errors"
	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/Novip1906/tasks-live/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const userPrefix = "user:"

type UserRepository struct {
	store      storage.Store
	bcryptCost int
}

func NewUserRepository(store storage.Store, bcryptCost int) *UserRepository {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserRepository{store: store, bcryptCost: bcryptCost}
}

// Create stores a new user. It fails with ErrUsernameTaken when the
// username is already registered.
func (r *UserRepository) Create(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.bcryptCost)
	if err != nil {
		return fmt.Errorf("%w: %w", appErrors.ErrInvalidParams, err)
	}

	data, err := json.Marshal(models.User{Username: username, PasswordHash: string(hash)})
	if err != nil {
		return err
	}

	created, err := r.store.SetNX(ctx, userPrefix+username, string(data), 0)
	if err != nil {
		return err
	}
	if !created {
		return appErrors.ErrUsernameTaken
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, username string) (*models.User, error) {
	data, err := r.store.Get(ctx, userPrefix+username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, appErrors.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("decode user %q: %w", username, err)
	}
	return &user, nil
}

func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	return r.store.Exists(ctx, userPrefix+username)
}

// CheckPassword does not distinguish an unknown user from a wrong password.
func (r *UserRepository) CheckPassword(ctx context.Context, username, password string) error {
	user, err := r.Get(ctx, username)
	if errors.Is(err, appErrors.ErrUserNotFound) {
		return appErrors.ErrInvalidCredentials
	}
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return appErrors.ErrInvalidCredentials
	}
	return nil
}
