// Package remote mirrors forge data to a Supabase table treated as one
// multi-file document: one row per file, keyed by file name.
package remote

import (
	"context"
	"fmt"
	"time"

	supa "github.com/supabase-community/supabase-go"
)

// DefaultTable holds the document rows.
const DefaultTable = "forge_files"

// FileRow is one file of the remote document.
type FileRow struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// rowClient is the table access SupabaseStore needs.
type rowClient interface {
	SelectAll(table string) ([]FileRow, error)
	Upsert(table string, rows []FileRow) error
}

type supabaseRows struct {
	client *supa.Client
}

func (s supabaseRows) SelectAll(table string) ([]FileRow, error) {
	var rows []FileRow
	if _, err := s.client.From(table).Select("name,content,updated_at", "exact", false).ExecuteTo(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s supabaseRows) Upsert(table string, rows []FileRow) error {
	_, _, err := s.client.From(table).Upsert(rows, "name", "minimal", "").Execute()
	return err
}

// SupabaseStore implements domain.DocumentStore.
type SupabaseStore struct {
	rows  rowClient
	table string
	now   func() time.Time
}

// NewSupabaseStore connects to the project at url.
func NewSupabaseStore(url, key, table string) (*SupabaseStore, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("connect supabase: %w", err)
	}
	return newStore(supabaseRows{client: client}, table), nil
}

func newStore(rows rowClient, table string) *SupabaseStore {
	if table == "" {
		table = DefaultTable
	}
	return &SupabaseStore{rows: rows, table: table, now: time.Now}
}

// ReadAll returns every file keyed by name.
func (s *SupabaseStore) ReadAll(ctx context.Context) (map[string]string, error) {
	rows, err := call(ctx, func() ([]FileRow, error) { return s.rows.SelectAll(s.table) })
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.table, err)
	}
	files := make(map[string]string, len(rows))
	for _, r := range rows {
		files[r.Name] = r.Content
	}
	return files, nil
}

// Patch replaces the content of the named files in one upsert.
func (s *SupabaseStore) Patch(ctx context.Context, files map[string]string) error {
	if len(files) == 0 {
		return nil
	}
	ts := s.now().UTC().Format(time.RFC3339)
	rows := make([]FileRow, 0, len(files))
	for name, content := range files {
		rows = append(rows, FileRow{Name: name, Content: content, UpdatedAt: ts})
	}
	_, err := call(ctx, func() (struct{}, error) { return struct{}{}, s.rows.Upsert(s.table, rows) })
	if err != nil {
		return fmt.Errorf("patch %s: %w", s.table, err)
	}
	return nil
}

// call runs fn and gives up when ctx ends. The postgrest client takes no
// context, so an abandoned call finishes in the background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
