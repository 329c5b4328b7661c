package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Othernet-Project/fsal/internal/fsobject"
)

// EntryRow is a row of the fsentries table, including the surrogate id and
// parent_id columns the fsobject.Row value type deliberately omits (those
// are store-internal bookkeeping, never surfaced on the wire).
type EntryRow struct {
	ID         int64
	ParentID   int64
	BasePath   string
	RelPath    string
	Name       string
	Size       int64
	CreateTime time.Time
	ModifyTime time.Time
	IsDir      bool
}

// Object converts the row to the fsobject value type.
func (e EntryRow) Object() fsobject.Object {
	return fsobject.FromRow(fsobject.Row{
		BasePath:   e.BasePath,
		RelPath:    e.RelPath,
		Name:       e.Name,
		Size:       e.Size,
		CreateTime: e.CreateTime,
		ModifyTime: e.ModifyTime,
		IsDir:      e.IsDir,
	})
}

func scanEntryRow(row interface{ Scan(...any) error }) (EntryRow, error) {
	var e EntryRow
	var kind int64
	var createNano, modifyNano int64
	err := row.Scan(&e.ID, &e.ParentID, &kind, &e.Name, &e.Size, &createNano, &modifyNano, &e.RelPath, &e.BasePath)
	if err != nil {
		return EntryRow{}, err
	}
	e.IsDir = kind == 1
	e.CreateTime = time.Unix(0, createNano).UTC()
	e.ModifyTime = time.Unix(0, modifyNano).UTC()
	return e, nil
}

const entryColumns = `id, parent_id, type, name, size, create_time, modify_time, path, base_path`

// GetByPath fetches a single entry by (basePath, relPath).
func (s *Store) GetByPath(ctx context.Context, basePath, relPath string) (EntryRow, error) {
	return s.getByPath(ctx, s.db, basePath, relPath)
}

// GetByPathTx is GetByPath inside an open transaction. Reads issued while a
// transaction is in flight must go through it: the pool holds a single
// connection, so a read on the bare handle would wait on the transaction
// forever.
func (s *Store) GetByPathTx(ctx context.Context, tx *sql.Tx, basePath, relPath string) (EntryRow, error) {
	return s.getByPath(ctx, tx, basePath, relPath)
}

func (s *Store) getByPath(ctx context.Context, q rowQueryer, basePath, relPath string) (EntryRow, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM fsentries WHERE base_path = ? AND path = ?`,
		basePath, relPath)
	e, err := scanEntryRow(row)
	if err != nil {
		return EntryRow{}, NotFoundErr(err, "no entry for %s/%s", basePath, relPath)
	}
	return e, nil
}

// ListChildren returns the direct children of parentID under basePath,
// ordered by name so listings are deterministic.
func (s *Store) ListChildren(ctx context.Context, basePath string, parentID int64) ([]EntryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM fsentries WHERE base_path = ? AND parent_id = ? ORDER BY name`,
		basePath, parentID)
	if err != nil {
		return nil, fmt.Errorf("store: list children: %w", err)
	}
	defer rows.Close()
	return collectEntryRows(rows)
}

func collectEntryRows(rows *sql.Rows) ([]EntryRow, error) {
	var out []EntryRow
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertEntry inserts or updates an entry keyed by (base_path, path),
// returning its surrogate id.
func (s *Store) UpsertEntry(ctx context.Context, tx *sql.Tx, e EntryRow) (int64, error) {
	q := s.rower(tx)
	kind := 0
	if e.IsDir {
		kind = 1
	}
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO fsentries (parent_id, type, name, size, create_time, modify_time, path, base_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(base_path, path) DO UPDATE SET
			parent_id = excluded.parent_id,
			type = excluded.type,
			name = excluded.name,
			size = excluded.size,
			create_time = excluded.create_time,
			modify_time = excluded.modify_time
		RETURNING id
	`, e.ParentID, kind, e.Name, e.Size, e.CreateTime.UnixNano(), e.ModifyTime.UnixNano(), e.RelPath, e.BasePath).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert entry %s/%s: %w", e.BasePath, e.RelPath, err)
	}
	return id, nil
}

// DeleteByPath removes a single entry.
func (s *Store) DeleteByPath(ctx context.Context, tx *sql.Tx, basePath, relPath string) error {
	exec := s.execer(tx)
	_, err := exec.ExecContext(ctx, `DELETE FROM fsentries WHERE base_path = ? AND path = ?`, basePath, relPath)
	if err != nil {
		return fmt.Errorf("store: delete entry %s/%s: %w", basePath, relPath, err)
	}
	return nil
}

// RenamePath updates an entry's path/name/parent in place, keeping the same
// surrogate id.
func (s *Store) RenamePath(ctx context.Context, tx *sql.Tx, basePath, oldRelPath, newRelPath, newName string, newParentID int64) error {
	exec := s.execer(tx)
	_, err := exec.ExecContext(ctx, `
		UPDATE fsentries SET path = ?, name = ?, parent_id = ?
		WHERE base_path = ? AND path = ?
	`, newRelPath, newName, newParentID, basePath, oldRelPath)
	if err != nil {
		return fmt.Errorf("store: rename entry %s/%s: %w", basePath, oldRelPath, err)
	}
	return nil
}

// AllPaths returns every indexed entry, ordered by (base_path, path). Prune
// uses this as its sweep source; disk-existence and blacklist checks are the
// caller's job since they need live filesystem access.
func (s *Store) AllPaths(ctx context.Context) ([]EntryRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM fsentries ORDER BY base_path, path`)
	if err != nil {
		return nil, fmt.Errorf("store: list all entries: %w", err)
	}
	defer rows.Close()
	return collectEntryRows(rows)
}

// DeletePaths removes a batch of (base_path, path) pairs, the flush unit of
// the prune pass.
func (s *Store) DeletePaths(ctx context.Context, tx *sql.Tx, pairs [][2]string) error {
	if len(pairs) == 0 {
		return nil
	}
	exec := s.execer(tx)
	stmt, err := exec.PrepareContext(ctx, `DELETE FROM fsentries WHERE base_path = ? AND path = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare batch delete: %w", err)
	}
	defer stmt.Close()
	for _, p := range pairs {
		if _, err := stmt.ExecContext(ctx, p[0], p[1]); err != nil {
			return fmt.Errorf("store: batch delete %s/%s: %w", p[0], p[1], err)
		}
	}
	return nil
}

// ListDescendants returns the entry at relPath and every entry nested under
// it, ordered deepest-path-first so callers emitting per-row deleted events
// see children before their parent.
func (s *Store) ListDescendants(ctx context.Context, basePath, relPath string) ([]EntryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM fsentries WHERE base_path = ? AND (path = ? OR path LIKE ? ESCAPE '\')
		 ORDER BY length(path) DESC, path DESC`,
		basePath, relPath, likeEscape(relPath)+string(filepath.Separator)+"%")
	if err != nil {
		return nil, fmt.Errorf("store: list descendants of %s/%s: %w", basePath, relPath, err)
	}
	defer rows.Close()
	return collectEntryRows(rows)
}

// DeleteSubtree removes an entry and, for a directory, every entry whose
// path is nested under it. LIKE wildcards in the path are escaped with a
// backslash so a literal % or _ in a filename never widens the delete.
func (s *Store) DeleteSubtree(ctx context.Context, tx *sql.Tx, basePath, relPath string, isDir bool) error {
	exec := s.execer(tx)
	if !isDir {
		_, err := exec.ExecContext(ctx, `DELETE FROM fsentries WHERE base_path = ? AND path = ?`, basePath, relPath)
		if err != nil {
			return fmt.Errorf("store: delete subtree %s/%s: %w", basePath, relPath, err)
		}
		return nil
	}
	_, err := exec.ExecContext(ctx,
		`DELETE FROM fsentries WHERE base_path = ? AND (path = ? OR path LIKE ? ESCAPE '\')`,
		basePath, relPath, likeEscape(relPath)+string(filepath.Separator)+"%")
	if err != nil {
		return fmt.Errorf("store: delete subtree %s/%s: %w", basePath, relPath, err)
	}
	return nil
}

// SearchByKeywords finds entries under basePath whose name matches any of
// the keywords (a disjunctive filter). Plain mode is a case-insensitive
// substring LIKE per keyword; wholeWords mode is case-sensitive and requires
// the keyword to appear as a whole token within the name.
func (s *Store) SearchByKeywords(ctx context.Context, basePath string, keywords []string, wholeWords bool) ([]EntryRow, error) {
	query := `SELECT ` + entryColumns + ` FROM fsentries WHERE base_path = ?`
	args := []any{basePath}
	if len(keywords) > 0 {
		conds := make([]string, 0, len(keywords))
		for _, kw := range keywords {
			if wholeWords {
				conds = append(conds, `instr(' ' || name || ' ', ?) > 0`)
				args = append(args, " "+kw+" ")
			} else {
				conds = append(conds, `lower(name) LIKE ? ESCAPE '\'`)
				args = append(args, "%"+likeEscape(strings.ToLower(kw))+"%")
			}
		}
		query += ` AND (` + strings.Join(conds, " OR ") + `)`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search %v: %w", keywords, err)
	}
	defer rows.Close()
	return collectEntryRows(rows)
}

func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// Totals returns the number of indexed entries and the sum of their sizes
// across every configured base, used for the scan-completion log line.
func (s *Store) Totals(ctx context.Context) (count int64, totalSize int64, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM fsentries`)
	if err := row.Scan(&count, &totalSize); err != nil {
		return 0, 0, fmt.Errorf("store: totals: %w", err)
	}
	return count, totalSize, nil
}

type execContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(tx *sql.Tx) execContext {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *Store) rower(tx *sql.Tx) rowQueryer {
	if tx != nil {
		return tx
	}
	return s.db
}
