package content

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// frontMatter is the YAML header of a content source file.
type frontMatter struct {
	ID               int64             `yaml:"id"`
	Title            string            `yaml:"title"`
	Slug             string            `yaml:"slug"`
	Type             string            `yaml:"type"`
	Status           string            `yaml:"status"`
	Password         string            `yaml:"password"`
	MarkdownDisabled bool              `yaml:"markdown_disabled"`
	Excerpt          string            `yaml:"excerpt"`
	Author           string            `yaml:"author"`
	Date             time.Time         `yaml:"date"`
	Modified         time.Time         `yaml:"modified"`
	Categories       []string          `yaml:"categories"`
	Tags             []string          `yaml:"tags"`
	Attributes       map[string]string `yaml:"attributes"`
}

// Changes lists item ids affected by a Reload.
type Changes struct {
	Updated []int64
	Removed []int64
}

// Empty reports whether the reload changed nothing.
func (c Changes) Empty() bool {
	return len(c.Updated) == 0 && len(c.Removed) == 0
}

// FileRepository serves items parsed from a directory of Markdown sources
// with YAML front matter. Bodies are rendered to HTML with goldmark.
type FileRepository struct {
	dir    string
	engine goldmark.Markdown
	logger zerolog.Logger

	mu        sync.RWMutex
	mem       *MemoryRepository
	checksums map[int64][32]byte
}

// NewFileRepository loads every *.md file under dir.
func NewFileRepository(ctx context.Context, dir string, logger zerolog.Logger) (*FileRepository, error) {
	r := &FileRepository{
		dir: dir,
		engine: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Linkify),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		logger:    logger,
		mem:       NewMemoryRepository(),
		checksums: map[int64][32]byte{},
	}
	if _, err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) Get(ctx context.Context, id int64) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mem.Get(ctx, id)
}

func (r *FileRepository) FindByPath(ctx context.Context, path string) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mem.FindByPath(ctx, path)
}

func (r *FileRepository) List(ctx context.Context, q ListQuery) (ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mem.List(ctx, q)
}

// Reload rescans the directory and reports which items changed or vanished.
// Files that fail to parse are logged and skipped.
func (r *FileRepository) Reload(ctx context.Context) (Changes, error) {
	items := map[int64]Item{}
	sums := map[int64][32]byte{}

	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		item, sum, err := r.loadFile(path)
		if err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("Skipping content file")
			return nil
		}
		if _, dup := items[item.ID]; dup {
			r.logger.Warn().Int64("content_id", item.ID).Str("path", path).Msg("Duplicate content id, keeping first")
			return nil
		}
		items[item.ID] = item
		sums[item.ID] = sum
		return nil
	})
	if err != nil {
		return Changes{}, fmt.Errorf("content reload %s: %w", r.dir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var changes Changes
	for id, sum := range sums {
		if prev, ok := r.checksums[id]; ok && prev != sum {
			changes.Updated = append(changes.Updated, id)
		}
	}
	for id := range r.checksums {
		if _, ok := sums[id]; !ok {
			changes.Removed = append(changes.Removed, id)
		}
	}

	mem := NewMemoryRepository()
	for _, it := range items {
		mem.Put(it)
	}
	r.mem = mem
	r.checksums = sums

	r.logger.Debug().
		Int("items", len(items)).
		Int("updated", len(changes.Updated)).
		Int("removed", len(changes.Removed)).
		Msg("Content reloaded")

	return changes, nil
}

func (r *FileRepository) loadFile(path string) (Item, [32]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Item{}, [32]byte{}, fmt.Errorf("read: %w", err)
	}

	var meta frontMatter
	body, err := frontmatter.Parse(bytes.NewReader(raw), &meta)
	if err != nil {
		return Item{}, [32]byte{}, fmt.Errorf("parse front matter: %w", err)
	}
	if meta.ID <= 0 {
		return Item{}, [32]byte{}, fmt.Errorf("front matter: missing positive id")
	}

	var buf bytes.Buffer
	if err := r.engine.Convert(body, &buf); err != nil {
		return Item{}, [32]byte{}, fmt.Errorf("render body: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Item{}, [32]byte{}, fmt.Errorf("stat: %w", err)
	}

	item := Item{
		ID:               meta.ID,
		Title:            meta.Title,
		Slug:             meta.Slug,
		Type:             meta.Type,
		Status:           meta.Status,
		Password:         meta.Password,
		MarkdownDisabled: meta.MarkdownDisabled,
		HTML:             buf.String(),
		Excerpt:          meta.Excerpt,
		Author:           meta.Author,
		Published:        meta.Date,
		Modified:         meta.Modified,
		Categories:       meta.Categories,
		Tags:             meta.Tags,
		Attributes:       meta.Attributes,
	}
	if item.Slug == "" {
		item.Slug = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if item.Type == "" {
		item.Type = "post"
	}
	if item.Status == "" {
		item.Status = StatusPublish
	}
	if item.Modified.IsZero() {
		item.Modified = info.ModTime().UTC()
	}
	if item.Published.IsZero() {
		item.Published = item.Modified
	}

	return item, sha256.Sum256(raw), nil
}
