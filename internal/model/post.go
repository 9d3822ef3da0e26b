package model

import (
	"errors"
	"io"
	"strings"
	"time"
)

// Post is a stored post. ImageExt is NoImage when there is no attachment.
type Post struct {
	ID        string    `json:"post_id"`
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	ImageExt  string    `json:"image_ext"`
	CreatedAt time.Time `json:"created_at"`
}

// HasImage reports whether an attachment file belongs to the post.
func (p *Post) HasImage() bool {
	return p.ImageExt != "" && p.ImageExt != NoImage
}

// FeedPost is a post joined with its author's current username.
type FeedPost struct {
	Post
	AuthorName string `json:"author_name"`
	ImageURL   string `json:"image_url,omitempty"`
}

// FeedPage is one page of the global feed.
type FeedPage struct {
	Posts   []FeedPost `json:"posts"`
	Page    int        `json:"page"`
	HasMore bool       `json:"has_more"`
}

// Attachment is an uploaded file as received from the client.
type Attachment struct {
	Filename string
	Body     io.Reader
}

// PostUpdate names the fields an edit replaces. Nil fields are left alone.
type PostUpdate struct {
	Content     *string
	Attachment  *Attachment
	RemoveImage bool
}

const (
	// NoImage marks a post without an attachment.
	NoImage = "NONE"

	// DeletedAuthorName stands in for authors whose account no longer exists.
	DeletedAuthorName = "[deleted]"

	// TimeLayout is fixed width so lexical order of stored timestamps is time order.
	TimeLayout = "2006-01-02T15:04:05.000000000Z"

	DefaultFeedPageSize = 10
)

var allowedImageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// ImageExtension returns the lower-cased extension of filename when it is on
// the allow-list. Names without a dot, with an empty stem, or with any other
// extension are rejected.
func ImageExtension(filename string) (string, bool) {
	idx := strings.LastIndexByte(filename, '.')
	if idx <= 0 || idx == len(filename)-1 {
		return "", false
	}
	ext := strings.ToLower(filename[idx+1:])
	if _, ok := allowedImageExtensions[ext]; !ok {
		return "", false
	}
	return ext, true
}

// Post errors
var (
	ErrPostNotFound = errors.New("post not found")
	ErrNotPostOwner = errors.New("not the owner of this post")
	ErrEmptyContent = errors.New("content must not be empty")
	ErrPostExists   = errors.New("post already exists")
)
