package knowledge

// Document index status.
const (
	IndexStatusPending   = "pending"
	IndexStatusSplitting = "splitting"
	IndexStatusIndexing  = "indexing"
	IndexStatusCompleted = "completed"
	IndexStatusError     = "error"
)

// Segment status.
const (
	SegmentStatusWaiting   = "waiting"
	SegmentStatusIndexing  = "indexing"
	SegmentStatusCompleted = "completed"
	SegmentStatusError     = "error"
)

// IsTerminalIndexStatus reports whether a document status ends a run.
func IsTerminalIndexStatus(s string) bool {
	return s == IndexStatusCompleted || s == IndexStatusError
}
