// Package report renders the patient summary shown next to the slide.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kutubofficial/WSI-detection/pkg/types"
)

// Header identifies the slide the report belongs to.
type Header struct {
	Date      string
	PatientID string
}

// DefaultPatientReport returns the fixed cell counts displayed until a
// counting backend provides real ones.
func DefaultPatientReport() types.PatientReport {
	return types.PatientReport{
		RBC: []types.CellCount{
			{Type: "Angist Cells", Count: 222, Percentage: "67%"},
			{Type: "Borderline Ondroyser", Count: 50, Percentage: "20%"},
			{Type: "Burr Cells", Count: 87, Percentage: "34%"},
			{Type: "Fragmented Cells", Count: 2, Percentage: "0.12%"},
		},
		WBC: []types.CellCount{
			{Type: "Basophil", Count: 222, Percentage: "67%"},
			{Type: "Eosinophil", Count: 50, Percentage: "20%"},
			{Type: "Lymphocyte", Count: 87, Percentage: "34%"},
			{Type: "Monocyte", Count: 2, Percentage: "0.12%"},
		},
		Platelets: types.Platelets{Count: 222, Percentage: "222"},
	}
}

// Write renders h and r as plain-text tables.
func Write(w io.Writer, h Header, r types.PatientReport) error {
	if _, err := fmt.Fprintf(w, "Date: %s\nPatient ID: %s\n\n", h.Date, h.PatientID); err != nil {
		return err
	}

	if err := writeTable(w, "RBC Analysis", r.RBC); err != nil {
		return err
	}
	if err := writeTable(w, "WBC Analysis", r.WBC); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "Platelets\nCount: %d\nPercentage: %s%%\n", r.Platelets.Count, r.Platelets.Percentage)
	return err
}

func writeTable(w io.Writer, title string, rows []types.CellCount) error {
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "Type\tCount\tPercentage"); err != nil {
		return fmt.Errorf("failed to write %s table: %w", title, err)
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%d\t%s\n", row.Type, row.Count, row.Percentage); err != nil {
			return fmt.Errorf("failed to write %s table: %w", title, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write %s table: %w", title, err)
	}
	_, err := fmt.Fprintln(w)
	return err
}
