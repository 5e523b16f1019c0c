package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/commentmap/internal/apperr"
	"github.com/starford/commentmap/internal/models"
)

// envelope is the comment API response shape.
type envelope struct {
	Comments []models.RawComment `json:"comments"`
}

// DecodeBatch parses batch content: either a JSON array of comments or the
// comment API envelope {"comments": [...]}.
func DecodeBatch(data []byte) ([]models.RawComment, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("storage: decode batch: empty: %w", apperr.ErrInvalidBatch)
	}

	var comments []models.RawComment
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &comments); err != nil {
			return nil, fmt.Errorf("storage: decode batch: %v: %w", err, apperr.ErrInvalidBatch)
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("storage: decode batch: %v: %w", err, apperr.ErrInvalidBatch)
		}
		comments = env.Comments
	default:
		return nil, fmt.Errorf("storage: decode batch: not a JSON array or object: %w", apperr.ErrInvalidBatch)
	}

	for i, c := range comments {
		if c.ID == "" {
			return nil, fmt.Errorf("storage: decode batch: comment %d has no id: %w", i, apperr.ErrInvalidBatch)
		}
	}
	if comments == nil {
		comments = []models.RawComment{}
	}
	return comments, nil
}
