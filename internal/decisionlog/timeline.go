package decisionlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Filters narrow a timeline query. Zero values mean no filter.
type Filters struct {
	From         time.Time
	To           time.Time
	Actor        uuid.UUID
	Action       string
	ResourceType string
	SecurityOnly bool
	Page         int
	PageSize     int
}

// PagingInfo captures pagination state for the timeline.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps a timeline page with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// TimelineRepository defines the queries the timeline service needs.
type TimelineRepository interface {
	TimelineWindow(ctx context.Context, f Filters, limit, offset int) ([]Entry, error)
	TimelineAll(ctx context.Context, f Filters) ([]Entry, error)
}

// TimelineService reads the decision trail for compliance review.
type TimelineService struct {
	repo TimelineRepository
}

// NewTimelineService builds a timeline service.
func NewTimelineService(repo TimelineRepository) *TimelineService {
	return &TimelineService{repo: repo}
}

// Timeline fetches one page of decisions, newest first. One extra row
// is requested to detect whether a next page exists.
func (s *TimelineService) Timeline(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("decisionlog: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.TimelineWindow(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches every matching decision without paging.
func (s *TimelineService) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("decisionlog: repository not configured")
	}
	return s.repo.TimelineAll(ctx, filters)
}

// ExportRows renders entries as CSV rows for download or archival.
func ExportRows(entries []Entry) ([]string, [][]string) {
	header := []string{"occurred_at", "actor", "action", "resource_type", "resource_id", "outcome", "risk", "security_event"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.At.UTC().Format(time.RFC3339),
			e.ActorID.String(),
			e.Action,
			e.ResourceType,
			e.ResourceID,
			string(e.Outcome),
			string(e.Risk),
			fmt.Sprintf("%t", e.SecurityEvent),
		})
	}
	return header, rows
}
