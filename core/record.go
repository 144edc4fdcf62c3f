package core

import "time"

// RecordType names a family of intake records sharing one ticket counter.
type RecordType string

const (
	// RecordTypeReport is a cyber crime report (tickets CYB000001...).
	RecordTypeReport RecordType = "report"
	// RecordTypeComplaint is a helpline complaint (tickets 1930OD000001...).
	RecordTypeComplaint RecordType = "complaint"
)

// Status is the lifecycle state of an intake record.
type Status string

// Known statuses. Flows pick their fixed initial status.
const (
	StatusReceived           Status = "Received"
	StatusRegistered         Status = "Registered"
	StatusInProgress         Status = "In Progress"
	StatusUnderInvestigation Status = "Under Investigation"
	StatusEscalated          Status = "Escalated"
	StatusResolved           Status = "Resolved"
	StatusClosed             Status = "Closed"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusRegistered, StatusInProgress, StatusUnderInvestigation,
		StatusEscalated, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority ranks records for the administrative queue.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Valid reports whether the priority is one of the known values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Actors recorded on timeline entries and notes.
const (
	ActorUser   = "user"
	ActorAdmin  = "admin"
	ActorSystem = "system"
)

// MediaItem is an attachment accumulated during a flow.
type MediaItem struct {
	Ref         string    `json:"ref"`
	ContentType string    `json:"content_type"`
	ReceivedAt  time.Time `json:"received_at"`
	// URL is a temporary download link filled in for admin reads. It is
	// never persisted.
	URL string `json:"url,omitempty"`
}

// TimelineEntry is one append-only audit event on a record.
type TimelineEntry struct {
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Actor       string    `json:"actor"`
	Timestamp   time.Time `json:"timestamp"`
}

// Note is an administrative note on a record.
type Note struct {
	Content   string    `json:"content"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// IntakeRecord is the persisted outcome of a completed flow. TicketID is
// immutable once assigned; records are never deleted.
type IntakeRecord struct {
	TicketID       string            `json:"ticket_id"`
	RecordType     RecordType        `json:"record_type"`
	FlowID         string            `json:"flow_id"`
	Identity       string            `json:"identity"`
	Category       string            `json:"category"`
	SubCategory    string            `json:"sub_category,omitempty"`
	Classification string            `json:"classification"`
	Fields         map[string]string `json:"fields"`
	Media          []MediaItem       `json:"media"`
	Status         Status            `json:"status"`
	Priority       Priority          `json:"priority"`
	AssignedTo     string            `json:"assigned_to,omitempty"`
	Timeline       []TimelineEntry   `json:"timeline"`
	Notes          []Note            `json:"notes"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// LatestNote returns the most recent note, if any.
func (r IntakeRecord) LatestNote() (Note, bool) {
	if len(r.Notes) == 0 {
		return Note{}, false
	}
	return r.Notes[len(r.Notes)-1], true
}

// RecentTimeline returns up to n most recent timeline entries, oldest first.
func (r IntakeRecord) RecentTimeline(n int) []TimelineEntry {
	if n <= 0 || len(r.Timeline) == 0 {
		return nil
	}
	start := len(r.Timeline) - n
	if start < 0 {
		start = 0
	}
	out := make([]TimelineEntry, len(r.Timeline)-start)
	copy(out, r.Timeline[start:])
	return out
}

// RecordFilter narrows administrative listings. Zero fields match all.
type RecordFilter struct {
	Status     Status
	Category   string
	RecordType RecordType
	Identity   string
	Limit      int
	Offset     int
}

// Matches reports whether rec satisfies the filter's predicates. Paging is
// applied by the repository.
func (f RecordFilter) Matches(rec IntakeRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Category != "" && rec.Category != f.Category {
		return false
	}
	if f.RecordType != "" && rec.RecordType != f.RecordType {
		return false
	}
	if f.Identity != "" && rec.Identity != f.Identity {
		return false
	}
	return true
}

// Clone returns a deep copy of the record.
func (r IntakeRecord) Clone() IntakeRecord {
	clone := r
	if r.Fields != nil {
		clone.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			clone.Fields[k] = v
		}
	}
	clone.Media = append([]MediaItem(nil), r.Media...)
	clone.Timeline = append([]TimelineEntry(nil), r.Timeline...)
	clone.Notes = append([]Note(nil), r.Notes...)
	return clone
}
