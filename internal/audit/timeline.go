package audit

import (
	"errors"
	"time"
)

// ErrInvalidFilter marks unusable timeline filters.
var ErrInvalidFilter = errors.New("invalid audit filter")

// TimelineFilters narrows the owner's audit trail. From and To are inclusive
// calendar days.
type TimelineFilters struct {
	OwnerID    int64
	From       time.Time
	To         time.Time
	Action     string
	TargetType string
	Page       int
	PageSize   int
}

// TimelineRow is one audit entry as shown to its owner.
type TimelineRow struct {
	At         time.Time      `json:"at"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   *int64         `json:"target_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// PagingInfo holds simple page metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps one page of the timeline.
type Result struct {
	Rows   []TimelineRow `json:"items"`
	Paging PagingInfo    `json:"paging"`
}
