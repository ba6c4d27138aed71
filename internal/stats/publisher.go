package stats

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Publisher delivers a rendered page somewhere readers can see it.
type Publisher interface {
	Publish(ctx context.Context, name, content string) error
	PublishBinary(ctx context.Context, filename string, data []byte) error
}

// DirPublisher writes pages as Markdown files into a directory.
type DirPublisher struct {
	dir string
}

// NewDirPublisher creates a DirPublisher rooted at dir.
func NewDirPublisher(dir string) *DirPublisher {
	return &DirPublisher{dir: dir}
}

// Publish writes the page to <dir>/<name>.md.
func (p *DirPublisher) Publish(_ context.Context, name, content string) error {
	return p.write(name+".md", []byte(content))
}

// PublishBinary writes raw bytes, e.g. a chart PNG, to <dir>/<filename>.
func (p *DirPublisher) PublishBinary(_ context.Context, filename string, data []byte) error {
	return p.write(filename, data)
}

func (p *DirPublisher) write(filename string, data []byte) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create stats dir: %w", err)
	}
	path := filepath.Join(p.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

var _ Publisher = (*DirPublisher)(nil)
