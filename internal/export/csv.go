// Package export writes task collections to CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"taskdesk/internal/models"
)

// Header is the first row of every export.
var Header = []string{"id", "description", "priority", "status", "created_at", "due_date", "category", "completed_at"}

// WriteCSV writes a header row followed by one row per task, in the given order.
// Missing due dates and completion times are written as empty cells.
func WriteCSV(w io.Writer, tasks []models.Task) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range tasks {
		if err := cw.Write(row(t)); err != nil {
			return fmt.Errorf("write task %d: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile exports tasks to path, replacing any existing file.
func WriteFile(path string, tasks []models.Task) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close export file: %w", cerr)
		}
	}()
	return WriteCSV(f, tasks)
}

func row(t models.Task) []string {
	due := ""
	if t.DueDate != nil {
		due = t.DueDate.String()
	}
	done := ""
	if t.CompletedAt != nil {
		done = t.CompletedAt.String()
	}
	return []string{
		strconv.FormatInt(t.ID, 10),
		t.Description,
		string(t.Priority),
		string(t.Status),
		t.CreatedAt.String(),
		due,
		t.Category,
		done,
	}
}
