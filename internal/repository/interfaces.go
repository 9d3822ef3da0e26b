package repository

import (
	"context"

	"postboard/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// Update replaces username and password hash in one statement.
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id int64) error
	// UsernamesByIDs resolves ids in one query. Unknown ids are absent from the map.
	UsernamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error)
	Count(ctx context.Context) (int64, error)
}

// PostPatch names the stored post fields an edit replaces.
type PostPatch struct {
	Content  *string
	ImageExt *string
}

func (p PostPatch) empty() bool {
	return p.Content == nil && p.ImageExt == nil
}

type PostRepository interface {
	// Create stores post, stamping CreatedAt from the store clock when unset.
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, postID string) (*model.Post, error)
	Exists(ctx context.Context, postID string) (bool, error)
	// Update applies patch to a post owned by authorID.
	Update(ctx context.Context, postID string, authorID int64, patch PostPatch) error
	// Delete removes a post owned by authorID.
	Delete(ctx context.Context, postID string, authorID int64) error
	DeleteByAuthor(ctx context.Context, authorID int64) (int64, error)
	// ListPage returns the global feed newest first.
	ListPage(ctx context.Context, page, pageSize int) ([]model.Post, bool, error)
	ListByAuthor(ctx context.Context, authorID int64) ([]model.Post, error)
	Count(ctx context.Context) (int64, error)
}
