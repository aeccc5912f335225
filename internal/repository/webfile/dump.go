// Package webfile stores published download links.
package webfile

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v2"

	"github.com/jgivc/fetchbot/internal/entity"
)

type Lister interface {
	List(ctx context.Context) ([]*entity.WebFileEntry, error)
}

// Snapshot is the YAML form of the registry.
type Snapshot struct {
	GeneratedAt time.Time              `yaml:"generated_at"`
	Files       []*entity.WebFileEntry `yaml:"files"`
}

func sortEntries(entries []*entity.WebFileEntry) {
	slices.SortFunc(entries, func(a, b *entity.WebFileEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		if a.SessionID < b.SessionID {
			return -1
		}

		if a.SessionID > b.SessionID {
			return 1
		}

		return 0
	})
}

func Dump(ctx context.Context, repo Lister, now time.Time, w io.Writer) error {
	entries, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("cannot list web files: %w", err)
	}

	data, err := yaml.Marshal(&Snapshot{GeneratedAt: now, Files: entries})
	if err != nil {
		return fmt.Errorf("cannot marshal snapshot: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("cannot write snapshot: %w", err)
	}

	return nil
}

// DumpFile writes the snapshot to path atomically.
func DumpFile(ctx context.Context, repo Lister, now time.Time, path string) error {
	f, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("cannot create pending file %s: %w", path, err)
	}
	defer f.Cleanup()

	if err := Dump(ctx, repo, now, f); err != nil {
		return err
	}

	if err := f.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("cannot replace %s: %w", path, err)
	}

	return nil
}
