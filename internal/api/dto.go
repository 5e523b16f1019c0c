package api

import (
	"errors"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/commentmap/internal/commentservice"
	"github.com/starford/commentmap/internal/index"
	"github.com/starford/commentmap/internal/models"
)

// EnrichRequest is the request body for stateless enrichment. When Context
// is omitted the comments are their own context.
type EnrichRequest struct {
	Comments []models.RawComment `json:"comments" validate:"required"`
	Context  []models.RawComment `json:"context,omitempty"`
}

// Validate checks that every comment carries an id.
func (r EnrichRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Comments, validation.NotNil, validation.Each(validation.By(hasID))),
		validation.Field(&r.Context, validation.Each(validation.By(hasID))),
	)
}

func hasID(value any) error {
	c, ok := value.(models.RawComment)
	if !ok || c.ID == "" {
		return errors.New("comment id is required")
	}
	return nil
}

// EnrichResponse wraps enriched comments.
type EnrichResponse struct {
	Comments []models.EnrichedComment `json:"comments" validate:"required"`
}

// CommentQuery holds the query parameters of GET /comments.
type CommentQuery struct {
	Batch     string
	Frame     string
	Thread    string
	Replies   string
	Ungrouped bool
	Limit     int
	Offset    int
}

// Validate validates paging and the replies flag.
func (q CommentQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Replies, validation.In("true", "false")),
		validation.Field(&q.Limit, validation.Min(0), validation.Max(500)),
		validation.Field(&q.Offset, validation.Min(0)),
	)
}

// Filter converts the query into an index filter.
func (q CommentQuery) Filter() index.CommentFilter {
	f := index.CommentFilter{
		Batch:     q.Batch,
		FrameID:   q.Frame,
		ThreadID:  q.Thread,
		Ungrouped: q.Ungrouped,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.Replies != "" {
		replies, _ := strconv.ParseBool(q.Replies)
		f.Replies = &replies
	}
	return f
}

// CommentListResponse wraps paginated comment listings.
type CommentListResponse struct {
	Comments []models.EnrichedComment `json:"comments" validate:"required"`
	Total    int                      `json:"total" example:"42" validate:"required"`
}

// ThreadResponse wraps one thread.
type ThreadResponse struct {
	ThreadID string                   `json:"threadId" example:"100" validate:"required"`
	Comments []models.EnrichedComment `json:"comments" validate:"required"`
}

// FramesResponse wraps frame groups.
type FramesResponse struct {
	Frames []index.FrameGroup `json:"frames" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// BatchListResponse wraps indexed batches.
type BatchListResponse struct {
	Batches []index.BatchRow `json:"batches" validate:"required"`
}

// BatchDetail is the full batch response type (aliased from the domain layer).
type BatchDetail = commentservice.BatchDetail
