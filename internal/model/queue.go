package model

// Queue is the persisted work queue document (.shuttle/queue.yaml).
type Queue struct {
	SchemaVersion int         `yaml:"schema_version"`
	FileType      string      `yaml:"file_type"`
	Items         []QueueItem `yaml:"items"`
}

// QueueItem is one requirements document waiting to be (or being) shipped.
// Path is the unique key; Priority is kept dense 1..N by the queue manager.
type QueueItem struct {
	Path        string            `yaml:"path"`
	DerivedName string            `yaml:"derived_name"`
	Status      Status            `yaml:"status"`
	Priority    int               `yaml:"priority"`
	Reason      *string           `yaml:"reason,omitempty"`
	CreatedAt   string            `yaml:"created_at"`
	UpdatedAt   string            `yaml:"updated_at"`
	StartedAt   *string           `yaml:"started_at,omitempty"`
	CompletedAt *string           `yaml:"completed_at,omitempty"`
	ExtraFields map[string]string `yaml:"extra_fields,omitempty"`
}

func NewQueue() Queue {
	return Queue{
		SchemaVersion: CurrentSchemaVersion,
		FileType:      FileTypeQueue,
		Items:         []QueueItem{},
	}
}

// Find returns a pointer into the queue's item slice, or nil.
func (q *Queue) Find(path string) *QueueItem {
	for i := range q.Items {
		if q.Items[i].Path == path {
			return &q.Items[i]
		}
	}
	return nil
}

// Active returns the single in_progress item, or nil. The queue manager
// guarantees there is at most one.
func (q *Queue) Active() *QueueItem {
	for i := range q.Items {
		if q.Items[i].Status == StatusInProgress {
			return &q.Items[i]
		}
	}
	return nil
}

// Stats counts items per status.
type Stats struct {
	Pending    int `yaml:"pending" json:"pending"`
	InProgress int `yaml:"in_progress" json:"in_progress"`
	Completed  int `yaml:"completed" json:"completed"`
	Failed     int `yaml:"failed" json:"failed"`
	Skipped    int `yaml:"skipped" json:"skipped"`
	Total      int `yaml:"total" json:"total"`
}

func (q *Queue) Stats() Stats {
	var s Stats
	for _, it := range q.Items {
		switch it.Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	s.Total = len(q.Items)
	return s
}
