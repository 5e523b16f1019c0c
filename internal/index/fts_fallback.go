//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/commentmap/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the comments table.
	return nil
}

func ftsInsert(_ *sql.Tx, _ string, _ models.EnrichedComment) error {
	// Message and frame name are already stored in the comments table.
	return nil
}

func ftsDeleteBatch(_ *sql.Tx, _ string) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT batch, id, thread_id, frame_name, substr(message, 1, 200)
		FROM comments
		WHERE message LIKE ? OR frame_name LIKE ? OR user_handle LIKE ?
		ORDER BY batch, position
		LIMIT ?
	`, like, like, like, limit)
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
