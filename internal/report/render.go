package report

import (
	"context"
	"fmt"
	"time"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

// Renderer turns a report payload into a file artifact.
type Renderer interface {
	Render(ctx context.Context, reportType domain.ReportType, periodStart time.Time, payload any, format domain.OutputFormat) (path string, url string, err error)
}

// StubRenderer returns deterministic placeholder paths. The rendering
// backend itself lives outside this service.
type StubRenderer struct {
	BaseURL string
}

func NewStubRenderer(baseURL string) *StubRenderer {
	if baseURL == "" {
		baseURL = "https://reports.backroomleeds.example"
	}
	return &StubRenderer{BaseURL: baseURL}
}

func (r *StubRenderer) Render(ctx context.Context, reportType domain.ReportType, periodStart time.Time, payload any, format domain.OutputFormat) (string, string, error) {
	ext := string(format)
	if format == domain.OutputFormatExcel {
		ext = "xlsx"
	}
	name := fmt.Sprintf("%s_%s.%s", reportType, periodStart.Format("2006-01-02"), ext)
	path := "/reports/" + name
	return path, r.BaseURL + path, nil
}
