package service

import (
	"fmt"
	"strings"

	"github.com/fresadolab/cnc-training-api/internal/models"
	appErrors "github.com/fresadolab/cnc-training-api/pkg/errors"
	"github.com/fresadolab/cnc-training-api/pkg/export"
)

// Export formats supported by the review export.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportResult bundles rendered bytes with their content type and name.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders a review list into a downloadable document.
type ExportService struct {
	csv *export.CSVExporter
	pdf *export.PDFExporter
}

// NewExportService constructs the exporter pair.
func NewExportService() *ExportService {
	return &ExportService{csv: export.NewCSVExporter(), pdf: export.NewPDFExporter()}
}

// RenderReview produces a CSV or PDF export of the given responses.
func (s *ExportService) RenderReview(className string, responses []models.StudentResponseDetail, format string) (*ExportResult, error) {
	dataset := export.Dataset{
		Headers: []string{"Assignment", "Student", "Email", "Response", "Correct", "Submitted At"},
		Rows:    make([]map[string]string, 0, len(responses)),
	}
	for _, r := range responses {
		correct := "no"
		if r.IsCorrect {
			correct = "yes"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Assignment":   r.AssignmentTitle,
			"Student":      r.StudentName,
			"Email":        r.StudentEmail,
			"Response":     r.Response,
			"Correct":      correct,
			"Submitted At": r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	base := strings.ReplaceAll(strings.TrimSpace(className), " ", "_")
	if base == "" {
		base = "responses"
	}

	switch strings.ToLower(format) {
	case ExportFormatCSV, "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: fmt.Sprintf("%s_responses.csv", base)}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Responses - %s", className))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: fmt.Sprintf("%s_responses.pdf", base)}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
