package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"postboard/internal/model"
	"postboard/internal/repository"
	"postboard/internal/worker"
)

// maxPostIDAttempts bounds GenerateUniquePostID. A v4 collision is already
// astronomically unlikely; repeated hits mean the generator is broken.
const maxPostIDAttempts = 8

// ImageEnqueuer accepts resize work without blocking.
type ImageEnqueuer interface {
	Enqueue(path string, size worker.Size) bool
}

// AttachmentMirror is an optional public copy of attachments. When set,
// attachment URLs point at it, so every installed file is uploaded before
// the call that installed it returns.
type AttachmentMirror interface {
	PutFile(ctx context.Context, path string) error
	DeleteFile(ctx context.Context, filename string) error
	URL(filename string) string
}

// PostServiceConfig holds filesystem and paging settings.
type PostServiceConfig struct {
	UploadDir string
	ImageSize worker.Size
	PageSize  int
}

type PostService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	images   ImageEnqueuer
	mirror   AttachmentMirror // Can be nil if R2 not configured
	cfg      PostServiceConfig
	newID    func() string
}

func NewPostService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	images ImageEnqueuer,
	cfg PostServiceConfig,
) *PostService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = model.DefaultFeedPageSize
	}
	return &PostService{
		postRepo: postRepo,
		userRepo: userRepo,
		images:   images,
		cfg:      cfg,
		newID:    uuid.NewString,
	}
}

// SetMirror sets the attachment mirror (optional).
func (s *PostService) SetMirror(m AttachmentMirror) {
	s.mirror = m
}

// CreatePost stores a new post. An attachment whose name does not carry an
// allowed extension is ignored. The file is written before the post row so
// a stored image_ext always has a file behind it.
func (s *PostService) CreatePost(ctx context.Context, authorID int64, content string, att *model.Attachment) (*model.Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, model.ErrEmptyContent
	}

	postID, err := s.GenerateUniquePostID(ctx)
	if err != nil {
		return nil, err
	}

	post := &model.Post{
		ID:       postID,
		AuthorID: authorID,
		Content:  content,
		ImageExt: s.attachmentExt(att),
	}

	var imagePath string
	if filename, ok := DeriveFilename(post); ok {
		imagePath = s.ImagePath(filename)
		if err := writeFile(imagePath, att.Body); err != nil {
			return nil, fmt.Errorf("save attachment: %w", err)
		}
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		if imagePath != "" {
			removeFile(imagePath)
		}
		return nil, fmt.Errorf("create post: %w", err)
	}

	if imagePath != "" {
		s.mirrorAttachment(ctx, imagePath)
		s.enqueueResize(imagePath)
	}

	log.Printf("[PostService] CreatePost OK: post=%s author=%d image_ext=%s", post.ID, authorID, post.ImageExt)
	return post, nil
}

// EditPost replaces the supplied fields of a post owned by authorID.
// Ownership is checked before anything is written.
func (s *PostService) EditPost(ctx context.Context, postID string, authorID int64, upd model.PostUpdate) (*model.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != authorID {
		return nil, model.ErrNotPostOwner
	}
	if upd.Content != nil && strings.TrimSpace(*upd.Content) == "" {
		return nil, model.ErrEmptyContent
	}

	oldFilename, hadImage := DeriveFilename(post)

	var patch repository.PostPatch
	patch.Content = upd.Content

	var staged, newPath string
	switch newExt := s.attachmentExt(upd.Attachment); {
	case newExt != model.NoImage:
		newPath = s.ImagePath(post.ID + "." + newExt)
		staged, err = stageFile(s.cfg.UploadDir, upd.Attachment.Body)
		if err != nil {
			return nil, fmt.Errorf("save attachment: %w", err)
		}
		patch.ImageExt = &newExt
	case upd.RemoveImage && hadImage:
		none := model.NoImage
		patch.ImageExt = &none
	}

	if err := s.postRepo.Update(ctx, postID, authorID, patch); err != nil {
		if staged != "" {
			removeFile(staged)
		}
		return nil, err
	}

	if staged != "" {
		if err := os.Rename(staged, newPath); err != nil {
			removeFile(staged)
			return nil, fmt.Errorf("install attachment: %w", err)
		}
	}
	if hadImage && patch.ImageExt != nil && s.ImagePath(oldFilename) != newPath {
		s.removeAttachment(ctx, oldFilename)
	}
	if newPath != "" {
		s.mirrorAttachment(ctx, newPath)
		s.enqueueResize(newPath)
	}

	log.Printf("[PostService] EditPost OK: post=%s author=%d", postID, authorID)
	return s.postRepo.GetByID(ctx, postID)
}

// DeletePost removes a post owned by authorID and its attachment.
func (s *PostService) DeletePost(ctx context.Context, authorID int64, postID string) error {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return err
	}

	if err := s.postRepo.Delete(ctx, postID, authorID); err != nil {
		return err
	}

	if filename, ok := DeriveFilename(post); ok {
		s.removeAttachment(ctx, filename)
	}

	log.Printf("[PostService] DeletePost OK: post=%s author=%d", postID, authorID)
	return nil
}

// DeleteAllByAuthor removes every post by authorID with their attachments.
// It is the explicit cascade for account deletion.
func (s *PostService) DeleteAllByAuthor(ctx context.Context, authorID int64) (int64, error) {
	posts, err := s.postRepo.ListByAuthor(ctx, authorID)
	if err != nil {
		return 0, err
	}

	removed, err := s.postRepo.DeleteByAuthor(ctx, authorID)
	if err != nil {
		return 0, err
	}

	for i := range posts {
		if filename, ok := DeriveFilename(&posts[i]); ok {
			s.removeAttachment(ctx, filename)
		}
	}

	log.Printf("[PostService] DeleteAllByAuthor OK: author=%d removed=%d", authorID, removed)
	return removed, nil
}

// ListFeed returns one page of all posts, newest first.
func (s *PostService) ListFeed(ctx context.Context, page, pageSize int) (*model.FeedPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.cfg.PageSize
	}

	posts, hasMore, err := s.postRepo.ListPage(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	feed, err := s.JoinAuthorNames(ctx, posts)
	if err != nil {
		return nil, err
	}

	return &model.FeedPage{
		Posts:   feed,
		Page:    page,
		HasMore: hasMore,
	}, nil
}

// ListByAuthor returns every post by authorID, newest first.
func (s *PostService) ListByAuthor(ctx context.Context, authorID int64) ([]model.FeedPost, error) {
	posts, err := s.postRepo.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	return s.JoinAuthorNames(ctx, posts)
}

// GetByID retrieves a single post with its author name.
func (s *PostService) GetByID(ctx context.Context, postID string) (*model.FeedPost, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	joined, err := s.JoinAuthorNames(ctx, []model.Post{*post})
	if err != nil {
		return nil, err
	}
	return &joined[0], nil
}

// JoinAuthorNames attaches author usernames in one batch lookup. Authors that
// no longer exist are shown as model.DeletedAuthorName.
func (s *PostService) JoinAuthorNames(ctx context.Context, posts []model.Post) ([]model.FeedPost, error) {
	feed := make([]model.FeedPost, len(posts))
	if len(posts) == 0 {
		return feed, nil
	}

	authorIDs := make([]int64, len(posts))
	for i, p := range posts {
		authorIDs[i] = p.AuthorID
	}

	names, err := s.userRepo.UsernamesByIDs(ctx, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve author names: %w", err)
	}

	for i, p := range posts {
		name, ok := names[p.AuthorID]
		if !ok {
			name = model.DeletedAuthorName
		}
		feed[i] = model.FeedPost{Post: p, AuthorName: name}
		if filename, ok := DeriveFilename(&posts[i]); ok {
			feed[i].ImageURL = s.ImageURL(filename)
		}
	}
	return feed, nil
}

// GenerateUniquePostID draws random UUIDs until one is not in use.
func (s *PostService) GenerateUniquePostID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxPostIDAttempts; attempt++ {
		id := s.newID()
		exists, err := s.postRepo.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check post id: %w", err)
		}
		if !exists {
			return id, nil
		}
		log.Printf("[PostService] Post id collision: id=%s attempt=%d", id, attempt+1)
	}
	return "", fmt.Errorf("no unused post id after %d attempts: %w", maxPostIDAttempts, model.ErrPostExists)
}

// DeriveFilename returns the attachment filename of post, or false when the
// post has no attachment.
func DeriveFilename(post *model.Post) (string, bool) {
	if !post.HasImage() {
		return "", false
	}
	return post.ID + "." + post.ImageExt, true
}

// ImagePath is where an attachment lives on disk.
func (s *PostService) ImagePath(filename string) string {
	return filepath.Join(s.cfg.UploadDir, filename)
}

// ImageURL is where clients fetch an attachment.
func (s *PostService) ImageURL(filename string) string {
	if s.mirror != nil {
		return s.mirror.URL(filename)
	}
	return "/images/" + filename
}

func (s *PostService) attachmentExt(att *model.Attachment) string {
	if att == nil || att.Body == nil {
		return model.NoImage
	}
	ext, ok := model.ImageExtension(filepath.Base(att.Filename))
	if !ok {
		log.Printf("[PostService] Attachment ignored: filename=%q", att.Filename)
		return model.NoImage
	}
	return ext
}

func (s *PostService) enqueueResize(path string) {
	if s.images == nil {
		return
	}
	if !s.images.Enqueue(path, s.cfg.ImageSize) {
		log.Printf("[PostService] Resize skipped, queue full: path=%s", path)
	}
}

// mirrorAttachment uploads the unprocessed file. The resize worker uploads
// again once it has replaced the file.
func (s *PostService) mirrorAttachment(ctx context.Context, path string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.PutFile(ctx, path); err != nil {
		log.Printf("[PostService] Mirror upload FAILED: path=%s err=%v", path, err)
	}
}

func (s *PostService) removeAttachment(ctx context.Context, filename string) {
	removeFile(s.ImagePath(filename))
	if s.mirror != nil {
		if err := s.mirror.DeleteFile(ctx, filename); err != nil {
			log.Printf("[PostService] Mirror delete FAILED: file=%s err=%v", filename, err)
		}
	}
}

// writeFile copies r into path via a sibling temp file.
func writeFile(path string, r io.Reader) error {
	staged, err := stageFile(filepath.Dir(path), r)
	if err != nil {
		return err
	}
	if err := os.Rename(staged, path); err != nil {
		removeFile(staged)
		return err
	}
	return nil
}

// stageFile copies r into a new temp file in dir and returns its path.
func stageFile(dir string, r io.Reader) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		removeFile(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		removeFile(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[PostService] Remove file FAILED: path=%s err=%v", path, err)
	}
}
