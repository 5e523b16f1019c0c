package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/commentmap/internal/apperr"
	"github.com/starford/commentmap/internal/models"
)

// BatchRow represents a row in the batches table.
type BatchRow struct {
	Name       string    `json:"name"`
	Checksum   string    `json:"checksum"`
	RunID      string    `json:"run_id"`
	Comments   int       `json:"comments"`
	EnrichedAt time.Time `json:"enriched_at"`
}

// CommentFilter narrows ListComments. Empty fields do not filter.
// Ungrouped selects comments without a frame and overrides FrameID.
type CommentFilter struct {
	Batch     string
	FrameID   string
	ThreadID  string
	Ungrouped bool
	Replies   *bool
	Limit     int
	Offset    int
}

// FrameGroup summarises the comments anchored under one top frame.
// FrameID is nil for the ungrouped bucket.
type FrameGroup struct {
	FrameID   *string `json:"frameId"`
	FrameName string  `json:"frameName"`
	Comments  int     `json:"comments"`
	Threads   int     `json:"threads"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Batch     string `json:"batch"`
	ID        string `json:"id"`
	ThreadID  string `json:"threadId"`
	FrameName string `json:"frameName"`
	Snippet   string `json:"snippet"`
}

const maxListLimit = 500

// ReplaceBatch stores the enriched comments of a batch, replacing whatever
// the batch held before, within a transaction.
func (db *DB) ReplaceBatch(b BatchRow, comments []models.EnrichedComment) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if b.EnrichedAt.IsZero() {
		b.EnrichedAt = time.Now()
	}
	_, err = tx.Exec(`
		INSERT INTO batches (name, checksum, run_id, comments, enriched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			checksum    = excluded.checksum,
			run_id      = excluded.run_id,
			comments    = excluded.comments,
			enriched_at = excluded.enriched_at
	`, b.Name, b.Checksum, b.RunID, len(comments), b.EnrichedAt)
	if err != nil {
		return fmt.Errorf("index: upsert batch: %w", err)
	}

	ftsDeleteBatch(tx, b.Name)
	if _, err := tx.Exec(`DELETE FROM comments WHERE batch = ?`, b.Name); err != nil {
		return fmt.Errorf("index: clear batch: %w", err)
	}

	if len(comments) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO comments
				(batch, id, position, message, user_handle, created_at, thread_id,
				 is_reply, frame_name, frame_id, resolved_node_id, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare comment insert: %w", err)
		}
		defer stmt.Close()

		for i, c := range comments {
			payload, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("index: encode comment %s: %w", c.ID, err)
			}
			if _, err := stmt.Exec(b.Name, c.ID, i, c.Message, c.AuthorHandle(), c.CreatedAt,
				c.ThreadID, c.IsReply, c.FrameName, c.FrameID, c.ResolvedNodeID, string(payload)); err != nil {
				return fmt.Errorf("index: insert comment %s: %w", c.ID, err)
			}
			if err := ftsInsert(tx, b.Name, c); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// DeleteBatch removes a batch and its comments.
func (db *DB) DeleteBatch(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteBatch(tx, name)
	_, _ = tx.Exec(`DELETE FROM comments WHERE batch = ?`, name)
	_, _ = tx.Exec(`DELETE FROM batches WHERE name = ?`, name)

	return tx.Commit()
}

// GetBatch returns one batch row or apperr.ErrNotFound.
func (db *DB) GetBatch(name string) (*BatchRow, error) {
	var b BatchRow
	err := db.conn.QueryRow(`SELECT name, checksum, run_id, comments, enriched_at FROM batches WHERE name = ?`, name).
		Scan(&b.Name, &b.Checksum, &b.RunID, &b.Comments, &b.EnrichedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get batch: %w", err)
	}
	return &b, nil
}

// ListBatches returns every indexed batch ordered by name.
func (db *DB) ListBatches() ([]BatchRow, error) {
	rows, err := db.conn.Query(`SELECT name, checksum, run_id, comments, enriched_at FROM batches ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("index: list batches: %w", err)
	}
	defer rows.Close()

	out := []BatchRow{}
	for rows.Next() {
		var b BatchRow
		if err := rows.Scan(&b.Name, &b.Checksum, &b.RunID, &b.Comments, &b.EnrichedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AllChecksums returns the stored checksum of every batch, keyed by name.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT name, checksum FROM batches`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, cs string
		if err := rows.Scan(&name, &cs); err != nil {
			return nil, err
		}
		out[name] = cs
	}
	return out, rows.Err()
}

// ListComments returns comments matching f in batch order, plus the total
// number of matches ignoring Limit and Offset.
func (db *DB) ListComments(f CommentFilter) ([]models.EnrichedComment, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Batch != "" {
		where = append(where, "batch = ?")
		args = append(args, f.Batch)
	}
	switch {
	case f.Ungrouped:
		where = append(where, "frame_id IS NULL")
	case f.FrameID != "":
		where = append(where, "frame_id = ?")
		args = append(args, f.FrameID)
	}
	if f.ThreadID != "" {
		where = append(where, "thread_id = ?")
		args = append(args, f.ThreadID)
	}
	if f.Replies != nil {
		where = append(where, "is_reply = ?")
		args = append(args, *f.Replies)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM comments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count comments: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = 100
	}
	offset := max(f.Offset, 0)

	rows, err := db.conn.Query(`SELECT payload FROM comments`+clause+` ORDER BY batch, position LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list comments: %w", err)
	}
	out, err := scanPayloads(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// BatchComments returns every comment of a batch in stored order.
func (db *DB) BatchComments(name string) ([]models.EnrichedComment, error) {
	rows, err := db.conn.Query(`SELECT payload FROM comments WHERE batch = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("index: batch comments: %w", err)
	}
	return scanPayloads(rows)
}

// Thread returns the comments of a thread, the top-level comment first and
// replies in creation order.
func (db *DB) Thread(threadID string) ([]models.EnrichedComment, error) {
	rows, err := db.conn.Query(`
		SELECT payload FROM comments
		WHERE thread_id = ?
		ORDER BY is_reply, created_at, batch, position
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("index: thread: %w", err)
	}
	out, err := scanPayloads(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, apperr.ErrNotFound
	}
	return out, nil
}

// Frames groups comments by top frame, largest group first. Comments
// without a frame form one group labelled fallbackLabel.
func (db *DB) Frames(fallbackLabel string) ([]FrameGroup, error) {
	rows, err := db.conn.Query(`
		SELECT frame_id, max(frame_name), count(*), count(DISTINCT thread_id)
		FROM comments
		GROUP BY frame_id
		ORDER BY count(*) DESC, max(frame_name)
	`)
	if err != nil {
		return nil, fmt.Errorf("index: frames: %w", err)
	}
	defer rows.Close()

	out := []FrameGroup{}
	for rows.Next() {
		var (
			g       FrameGroup
			frameID sql.NullString
		)
		if err := rows.Scan(&frameID, &g.FrameName, &g.Comments, &g.Threads); err != nil {
			return nil, err
		}
		if frameID.Valid {
			id := frameID.String
			g.FrameID = &id
		} else {
			g.FrameName = fallbackLabel
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanPayloads(rows *sql.Rows) ([]models.EnrichedComment, error) {
	defer rows.Close()
	out := []models.EnrichedComment{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var c models.EnrichedComment
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("index: decode comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
