package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postboard/internal/docstore"
	"postboard/internal/model"
)

const postDocVersion = 1

// postDoc is the stored payload of a posts row. The key lives in post_id.
type postDoc struct {
	V         int    `json:"v"`
	AuthorID  int64  `json:"author_id"`
	Content   string `json:"content"`
	ImageExt  string `json:"image_ext"`
	CreatedAt string `json:"created_at"`
}

var feedOrder = docstore.Query{OrderBy: "created_at", Desc: true}

type postRepository struct {
	store *docstore.Store
}

func NewPostRepository(store *docstore.Store) PostRepository {
	return &postRepository{store: store}
}

// Create inserts a post under its caller-chosen id.
func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = r.store.Now()
	}
	if post.ImageExt == "" {
		post.ImageExt = model.NoImage
	}

	_, err := r.store.Insert(ctx, docstore.Posts, post.ID, postDoc{
		V:         postDocVersion,
		AuthorID:  post.AuthorID,
		Content:   post.Content,
		ImageExt:  post.ImageExt,
		CreatedAt: post.CreatedAt.UTC().Format(model.TimeLayout),
	})
	if err != nil {
		if errors.Is(err, docstore.ErrDuplicateKey) {
			return model.ErrPostExists
		}
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, postID string) (*model.Post, error) {
	doc, err := r.store.Get(ctx, docstore.Posts, postID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, model.ErrPostNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return decodePost(doc)
}

func (r *postRepository) Exists(ctx context.Context, postID string) (bool, error) {
	return r.store.Exists(ctx, docstore.Posts, postID)
}

// Update applies patch in a single statement guarded on author_id.
func (r *postRepository) Update(ctx context.Context, postID string, authorID int64, patch PostPatch) error {
	if patch.empty() {
		return r.checkOwner(ctx, postID, authorID)
	}

	fields := make(map[string]any, 2)
	if patch.Content != nil {
		fields["content"] = *patch.Content
	}
	if patch.ImageExt != nil {
		fields["image_ext"] = *patch.ImageExt
	}

	err := r.store.UpdateFields(ctx, docstore.Posts, postID, fields, authorGuard(authorID))
	if errors.Is(err, docstore.ErrNotFound) {
		return r.missOrForbidden(ctx, postID)
	}
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

// Delete removes a post only when authorID owns it.
func (r *postRepository) Delete(ctx context.Context, postID string, authorID int64) error {
	err := r.store.Delete(ctx, docstore.Posts, postID, authorGuard(authorID))
	if errors.Is(err, docstore.ErrNotFound) {
		return r.missOrForbidden(ctx, postID)
	}
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

func (r *postRepository) DeleteByAuthor(ctx context.Context, authorID int64) (int64, error) {
	n, err := r.store.DeleteWhere(ctx, docstore.Posts, authorGuard(authorID))
	if err != nil {
		return 0, fmt.Errorf("delete posts by author: %w", err)
	}
	return n, nil
}

func (r *postRepository) ListPage(ctx context.Context, page, pageSize int) ([]model.Post, bool, error) {
	docs, hasMore, err := r.store.ListPage(ctx, docstore.Posts, feedOrder, page, pageSize)
	if err != nil {
		return nil, false, fmt.Errorf("list feed page: %w", err)
	}
	posts, err := decodePosts(docs)
	if err != nil {
		return nil, false, err
	}
	return posts, hasMore, nil
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID int64) ([]model.Post, error) {
	q := feedOrder
	q.Where = []docstore.Filter{authorGuard(authorID)}

	docs, err := r.store.List(ctx, docstore.Posts, q)
	if err != nil {
		return nil, fmt.Errorf("list posts by author: %w", err)
	}
	return decodePosts(docs)
}

func (r *postRepository) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx, docstore.Posts)
}

// missOrForbidden tells a missing post apart from one owned by someone else
// after a guarded mutation touched no row.
func (r *postRepository) missOrForbidden(ctx context.Context, postID string) error {
	exists, err := r.Exists(ctx, postID)
	if err != nil {
		return fmt.Errorf("check post exists: %w", err)
	}
	if exists {
		return model.ErrNotPostOwner
	}
	return model.ErrPostNotFound
}

func (r *postRepository) checkOwner(ctx context.Context, postID string, authorID int64) error {
	post, err := r.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != authorID {
		return model.ErrNotPostOwner
	}
	return nil
}

func authorGuard(authorID int64) docstore.Filter {
	return docstore.Filter{Field: "author_id", Value: authorID}
}

func decodePost(doc docstore.Document) (*model.Post, error) {
	var d postDoc
	if err := doc.Decode(&d); err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(model.TimeLayout, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of post %s: %w", doc.Key, err)
	}
	return &model.Post{
		ID:        doc.Key,
		AuthorID:  d.AuthorID,
		Content:   d.Content,
		ImageExt:  d.ImageExt,
		CreatedAt: createdAt,
	}, nil
}

func decodePosts(docs []docstore.Document) ([]model.Post, error) {
	posts := make([]model.Post, 0, len(docs))
	for _, doc := range docs {
		p, err := decodePost(doc)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, nil
}
