//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/commentmap/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS comments_fts USING fts5(
			batch UNINDEXED,
			id UNINDEXED,
			thread_id UNINDEXED,
			message,
			frame_name,
			path,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// ftsInsert adds one row per comment. Callers clear the batch first, so a
// repeated id keeps every row.
func ftsInsert(tx *sql.Tx, batch string, c models.EnrichedComment) error {
	_, err := tx.Exec(`INSERT INTO comments_fts (batch, id, thread_id, message, frame_name, path) VALUES (?, ?, ?, ?, ?, ?)`,
		batch, c.ID, c.ThreadID, c.Message, c.FrameName, hierarchyPath(c.Hierarchy))
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsDeleteBatch(tx *sql.Tx, batch string) {
	_, _ = tx.Exec(`DELETE FROM comments_fts WHERE batch = ?`, batch)
}

func hierarchyPath(h []models.AncestorRecord) string {
	names := make([]string, len(h))
	for i, a := range h {
		names[i] = a.Name
	}
	return strings.Join(names, " ")
}

// Search performs an FTS5 full-text search over messages and frame paths.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT batch,
		       id,
		       thread_id,
		       frame_name,
		       snippet(comments_fts, 3, '<b>', '</b>', '...', 32)
		FROM comments_fts
		WHERE comments_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Batch, &r.ID, &r.ThreadID, &r.FrameName, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
