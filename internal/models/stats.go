package models

// Statistics summarises a task collection.
type Statistics struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Pending        int     `json:"pending"`
	InProgress     int     `json:"in_progress"`
	CompletionRate float64 `json:"completion_rate"`
}

// Summarize counts tasks per status. CompletionRate is a percentage and is
// zero for an empty collection.
func Summarize(tasks []Task) Statistics {
	var s Statistics
	s.Total = len(tasks)
	for _, t := range tasks {
		switch t.Status {
		case StatusCompleted:
			s.Completed++
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		}
	}
	if s.Total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Total) * 100
	}
	return s
}
