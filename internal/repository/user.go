package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"postboard/internal/docstore"
	"postboard/internal/model"
)

const userDocVersion = 1

// userDoc is the stored payload of a users row. The key lives in user_id.
type userDoc struct {
	V            int    `json:"v"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// userRepository implements UserRepository on the document store
type userRepository struct {
	store *docstore.Store
}

// NewUserRepository creates a new user repository
func NewUserRepository(store *docstore.Store) UserRepository {
	return &userRepository{store: store}
}

// Create inserts the user. A zero ID lets the store assign one, which is
// written back to u.ID.
func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	var key any
	if u.ID != 0 {
		key = u.ID
	}

	assigned, err := r.store.Insert(ctx, docstore.Users, key, userDoc{
		V:            userDocVersion,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
	})
	if err != nil {
		if errors.Is(err, docstore.ErrDuplicateKey) {
			return r.duplicateCause(ctx, key)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := strconv.ParseInt(assigned, 10, 64)
	if err != nil {
		return fmt.Errorf("parse assigned user id %q: %w", assigned, err)
	}
	u.ID = id
	return nil
}

// duplicateCause tells an id clash from a username clash after a rejected insert.
func (r *userRepository) duplicateCause(ctx context.Context, key any) error {
	if key == nil {
		return model.ErrUsernameExists
	}
	taken, err := r.store.Exists(ctx, docstore.Users, key)
	if err != nil {
		return fmt.Errorf("check user id: %w", err)
	}
	if taken {
		return model.ErrUserIDExists
	}
	return model.ErrUsernameExists
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	doc, err := r.store.Get(ctx, docstore.Users, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return decodeUser(doc)
}

// GetByUsername retrieves a user by exact username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	doc, err := r.store.GetByField(ctx, docstore.Users, "username", username)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return decodeUser(doc)
}

// ExistsByUsername checks if a username is already taken
func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, model.ErrUserNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
}

func (r *userRepository) Update(ctx context.Context, u *model.User) error {
	err := r.store.UpdateFields(ctx, docstore.Users, u.ID, map[string]any{
		"username":      u.Username,
		"password_hash": u.PasswordHash,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return model.ErrUserNotFound
	case errors.Is(err, docstore.ErrDuplicateKey):
		return model.ErrUsernameExists
	default:
		return fmt.Errorf("failed to update user: %w", err)
	}
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	if err := r.store.Delete(ctx, docstore.Users, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return model.ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (r *userRepository) UsernamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error) {
	keys := make([]any, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, id)
	}

	raw, err := r.store.LookupField(ctx, docstore.Users, keys, "username")
	if err != nil {
		return nil, fmt.Errorf("failed to look up usernames: %w", err)
	}

	names := make(map[int64]string, len(raw))
	for k, name := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse user id %q: %w", k, err)
		}
		names[id] = name
	}
	return names, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx, docstore.Users)
}

func decodeUser(doc docstore.Document) (*model.User, error) {
	var d userDoc
	if err := doc.Decode(&d); err != nil {
		return nil, err
	}
	id, err := doc.IntKey()
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", doc.Key, err)
	}
	return &model.User{ID: id, Username: d.Username, PasswordHash: d.PasswordHash}, nil
}
