package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Mirror receives processed files, for example an object store copy.
type Mirror interface {
	PutFile(ctx context.Context, path string) error
}

// ResizeProcessor resizes an image file to the task size and overwrites it.
// The write goes to a sibling temp file first, so a failed task leaves the
// original untouched.
type ResizeProcessor struct {
	mirror Mirror
}

// NewResizeProcessor creates a processor. mirror may be nil.
func NewResizeProcessor(mirror Mirror) *ResizeProcessor {
	return &ResizeProcessor{mirror: mirror}
}

func (p *ResizeProcessor) Process(ctx context.Context, task ImageTask) error {
	if task.Size.Width <= 0 || task.Size.Height <= 0 {
		return fmt.Errorf("invalid target size %dx%d", task.Size.Width, task.Size.Height)
	}

	format, err := imaging.FormatFromFilename(task.Path)
	if err != nil {
		return fmt.Errorf("unsupported image format: %w", err)
	}

	img, err := imaging.Open(task.Path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	resized := imaging.Resize(img, task.Size.Width, task.Size.Height, imaging.Lanczos)

	tmp, err := os.CreateTemp(filepath.Dir(task.Path), ".resize-*"+filepath.Ext(task.Path))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := imaging.Encode(tmp, resized, format); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush image: %w", err)
	}
	if err := os.Rename(tmpName, task.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace image: %w", err)
	}

	if p.mirror != nil {
		if err := p.mirror.PutFile(ctx, task.Path); err != nil {
			log.Printf("[ResizeProcessor] Mirror FAILED: path=%s err=%v", task.Path, err)
		}
	}
	return nil
}
