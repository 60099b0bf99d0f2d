package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

const (
	summarySheet   = "Summary"
	maxSheetName   = 31
	invalidInSheet = `[]:*?/\`
)

var (
	summaryHeader = []interface{}{"Document Type", "Version", "Steps", "Source", "Updated By", "Updated At"}
	stepHeader    = []interface{}{"Order", "Step ID", "Name", "Status Key", "Description", "Icon",
		"Requires Approval", "Send Notification", "Approvers"}
)

// ExcelExporter writes one summary sheet plus one sheet per document type
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new spreadsheet exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// Export writes the workbook to w
func (e *ExcelExporter) Export(ctx context.Context, defs []*entity.WorkflowDefinition, w io.Writer) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("Failed to close workbook", zap.Error(err))
		}
	}()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename summary sheet: %w", err)
	}
	if err := writeRow(f, summarySheet, 1, summaryHeader, bold); err != nil {
		return err
	}

	used := map[string]bool{summarySheet: true}
	for i, def := range defs {
		if err := ctx.Err(); err != nil {
			return err
		}

		updatedAt := ""
		if !def.UpdatedAt.IsZero() {
			updatedAt = def.UpdatedAt.UTC().Format(time.RFC3339)
		}
		summary := []interface{}{def.DocumentTypeID, def.Version, len(def.Steps), def.Source, def.UpdatedBy, updatedAt}
		if err := writeRow(f, summarySheet, i+2, summary, 0); err != nil {
			return err
		}

		sheet := SheetName(def.DocumentTypeID, used)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
		if err := writeRow(f, sheet, 1, stepHeader, bold); err != nil {
			return err
		}
		for j, step := range def.Steps {
			row := []interface{}{
				step.Order + 1,
				step.ID,
				step.Name,
				step.StatusKey,
				step.Description,
				step.Icon,
				yesNo(step.RequiresApproval),
				yesNo(step.SendNotification),
				strings.Join(step.AssignedApprovers, ", "),
			}
			if err := writeRow(f, sheet, j+2, row, 0); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Workflow workbook written", zap.Int("document_types", len(defs)))
	return nil
}

// SheetName derives a unique sheet title within Excel's naming rules
func SheetName(documentTypeID string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidInSheet, r) {
			return '_'
		}
		return r
	}, documentTypeID)
	if name == "" {
		name = "untitled"
	}
	if len([]rune(name)) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}

	base := name
	for n := 2; used[strings.ToLower(name)] || strings.EqualFold(name, summarySheet); n++ {
		suffix := fmt.Sprintf("~%d", n)
		runes := []rune(base)
		if len(runes)+len(suffix) > maxSheetName {
			runes = runes[:maxSheetName-len(suffix)]
		}
		name = string(runes) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}, style int) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	if style == 0 {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, style)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

var _ port.WorkflowExporter = (*ExcelExporter)(nil)
