// Package export renders the task collection as a downloadable report.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hiroki-koketsu/go-otel-todo/internal/model"
	"github.com/jung-kurt/gofpdf"
)

// Format is a supported report format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// ParseFormat returns the Format named by s. An empty string means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Write renders tasks in format f to w.
func Write(w io.Writer, f Format, tasks model.Tasks, stats model.Stats) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Stats model.Stats `json:"stats"`
			Tasks model.Tasks `json:"tasks"`
		}{stats, tasks})
	case FormatCSV:
		return writeCSV(w, tasks)
	case FormatPDF:
		return writePDF(w, tasks, stats)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

func writeCSV(w io.Writer, tasks model.Tasks) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "text", "completed", "created_at", "updated_at"})
	for _, t := range tasks {
		updated := ""
		if t.UpdatedAt != nil {
			updated = t.UpdatedAt.Format(time.RFC3339)
		}
		_ = cw.Write([]string{t.ID, t.Text, strconv.FormatBool(t.Completed), t.CreatedAt.Format(time.RFC3339), updated})
	}
	cw.Flush()
	return cw.Error()
}

func writePDF(w io.Writer, tasks model.Tasks, stats model.Stats) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(40, 10, "To-Do List")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Total: %d   Pending: %d   Completed: %d", stats.Total, stats.Pending, stats.Completed))
	pdf.Ln(10)

	section := func(title string, ts model.Tasks, mark string) {
		if len(ts) == 0 {
			return
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, fmt.Sprintf("%s (%d)", title, len(ts)))
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		for _, t := range ts {
			line := fmt.Sprintf("[%s] %s  (created %s)", mark, tr(t.Text), t.CreatedAt.Format("2006-01-02 15:04"))
			pdf.MultiCell(0, 6, line, "0", "L", false)
		}
		pdf.Ln(4)
	}
	section("Pending Tasks", tasks.Pending(), " ")
	section("Completed Tasks", tasks.Completed(), "x")

	if len(tasks) == 0 {
		pdf.Cell(0, 6, "No tasks yet.")
	}

	return pdf.Output(w)
}
