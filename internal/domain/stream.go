package domain

import "time"

// Status is the lifecycle status of a stream.
type Status string

const (
	StatusLive    Status = "live"
	StatusOffline Status = "offline"
)

// Visibility controls who may see a stream in listings.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityMember  Visibility = "member"
)

// Stream is the mutable aggregate owned by exactly one user. UID is the
// ingest platform's live-input identifier and correlates lifecycle events
// to this record.
type Stream struct {
	ID          string
	UID         string
	OwnerID     string
	Name        string
	Visibility  Visibility
	CategoryIDs []string
	Status      Status
	StartedAt   time.Time
	EndedAt     time.Time
	LikedBy     []string
	IsDeleted   bool
	LastUpdated time.Time
}

// VisibleTo reports whether the stream appears in listings for the given
// requester. Public and member streams are visible to everyone; private
// streams only to their owner.
func (s *Stream) VisibleTo(requesterID string) bool {
	if s.Visibility != VisibilityPrivate {
		return true
	}
	return s.OwnerID == requesterID
}

// OwnerSummary is the joined owner projection returned by listings.
type OwnerSummary struct {
	FullName string
	NickName string
	Avatar   string
}

// CategorySummary is the joined category projection returned by listings.
type CategorySummary struct {
	Name     string
	ImageURL string
}

// StreamWithSummaries is a stream joined with its owner and category
// summaries for read surfaces.
type StreamWithSummaries struct {
	Stream
	Owner      OwnerSummary
	Categories []CategorySummary
}

// ListFilter narrows a live-stream listing.
type ListFilter struct {
	Name string
	UID  string
}

// Page is a 1-based pagination request.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps a page to usable values, matching the defaults of the
// listing endpoint.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 10
	}
	return p
}

// Skip returns the number of records before this page.
func (p Page) Skip() int {
	return (p.Number - 1) * p.Size
}

// StreamPage is one page of a live-stream listing, with totals computed
// over the filtered set before pagination.
type StreamPage struct {
	Streams    []StreamWithSummaries
	Total      int64
	Page       int
	TotalPages int64
}

// TotalPages computes the page count for a total and page size.
func TotalPages(total int64, size int) int64 {
	if total == 0 {
		return 0
	}
	return (total + int64(size) - 1) / int64(size)
}

// StreamStats are the aggregate counters exposed on the stats endpoint.
type StreamStats struct {
	Total     int64
	Today     int64
	ThisWeek  int64
	ThisMonth int64
	Monthly   []MonthlyCount
}

// MonthlyCount is one month's created-stream count.
type MonthlyCount struct {
	Year  int
	Month int
	Count int64
}
