package record

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ExportFormat defines the available export formats
type ExportFormat int

const (
	// ExportFormatJSON exports a JSON array of records
	ExportFormatJSON ExportFormat = iota
	// ExportFormatJSONL exports one JSON record per line
	ExportFormatJSONL
	// ExportFormatCSV exports the product tables as comma-separated values
	ExportFormatCSV
	// ExportFormatTSV exports the product tables as tab-separated values
	ExportFormatTSV
	// ExportFormatXLSX exports one worksheet per record
	ExportFormatXLSX
	// ExportFormatHTML exports a review sheet of flagged and failed values
	ExportFormatHTML
)

// String returns a human-readable representation of the export format
func (ef ExportFormat) String() string {
	switch ef {
	case ExportFormatJSON:
		return "json"
	case ExportFormatJSONL:
		return "jsonl"
	case ExportFormatCSV:
		return "csv"
	case ExportFormatTSV:
		return "tsv"
	case ExportFormatXLSX:
		return "xlsx"
	case ExportFormatHTML:
		return "html"
	default:
		return "unknown"
	}
}

// FileExtension returns the typical file extension for this format
func (ef ExportFormat) FileExtension() string {
	if s := ef.String(); s != "unknown" {
		return "." + s
	}
	return ".txt"
}

// ParseExportFormat maps a format name such as "csv" to its ExportFormat.
func ParseExportFormat(name string) (ExportFormat, error) {
	for f := ExportFormatJSON; f <= ExportFormatHTML; f++ {
		if f.String() == name {
			return f, nil
		}
	}
	return -1, fmt.Errorf("unsupported export format: %q", name)
}

// ExportConfig holds configuration options for export
type ExportConfig struct {
	// Format specifies the export format
	Format ExportFormat

	// PrettyPrint indents JSON output
	PrettyPrint bool

	// CSVDelimiter specifies the delimiter for CSV export (default: comma)
	CSVDelimiter rune

	// IncludeHeader includes a header row in CSV/TSV exports
	IncludeHeader bool

	// BOM prefixes CSV/TSV output with a UTF-8 byte order mark
	BOM bool
}

// DefaultExportConfig returns sensible defaults for export configuration
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Format:        ExportFormatJSON,
		PrettyPrint:   true,
		CSVDelimiter:  ',',
		IncludeHeader: true,
	}
}

// CSVExportConfig returns config for CSV export
func CSVExportConfig() ExportConfig {
	config := DefaultExportConfig()
	config.Format = ExportFormatCSV
	return config
}

// TSVExportConfig returns config for TSV export
func TSVExportConfig() ExportConfig {
	config := CSVExportConfig()
	config.Format = ExportFormatTSV
	config.CSVDelimiter = '\t'
	return config
}

// Exporter writes records in one of the export formats
type Exporter struct {
	config ExportConfig
}

// NewExporter creates a new exporter with default configuration
func NewExporter() *Exporter {
	return &Exporter{config: DefaultExportConfig()}
}

// NewExporterWithConfig creates an exporter with custom configuration
func NewExporterWithConfig(config ExportConfig) *Exporter {
	return &Exporter{config: config}
}

// Export writes records to w
func (e *Exporter) Export(records []*StructuredRecord, w io.Writer) error {
	switch e.config.Format {
	case ExportFormatJSON:
		return e.exportJSON(records, w)
	case ExportFormatJSONL:
		return e.exportJSONL(records, w)
	case ExportFormatCSV, ExportFormatTSV:
		return e.exportCSV(records, w)
	case ExportFormatXLSX:
		return e.exportXLSX(records, w)
	case ExportFormatHTML:
		return WriteReview(w, records)
	default:
		return fmt.Errorf("unsupported export format: %v", e.config.Format)
	}
}

// ExportToFile writes records to a file
func (e *Exporter) ExportToFile(records []*StructuredRecord, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := e.Export(records, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ExportToString writes records to a string
func (e *Exporter) ExportToString(records []*StructuredRecord) (string, error) {
	var buf bytes.Buffer
	if err := e.Export(records, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *Exporter) exportJSON(records []*StructuredRecord, w io.Writer) error {
	encoder := json.NewEncoder(w)
	if e.config.PrettyPrint {
		encoder.SetIndent("", "  ")
	}
	if records == nil {
		records = []*StructuredRecord{}
	}
	return encoder.Encode(records)
}

func (e *Exporter) exportJSONL(records []*StructuredRecord, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for i, r := range records {
		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return nil
}

// productColumns is the header of the CSV product table.
var productColumns = []string{
	"document_id", "quotation_no", "sr_no", "name", "description",
	"width", "depth", "height", "unit", "area",
	"material", "finish", "qty", "unit_price", "amount",
	"images", "confidence", "status",
}

func (e *Exporter) exportCSV(records []*StructuredRecord, w io.Writer) error {
	if e.config.BOM {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return err
		}
	}
	csvWriter := csv.NewWriter(w)
	if e.config.CSVDelimiter != 0 {
		csvWriter.Comma = e.config.CSVDelimiter
	}

	if e.config.IncludeHeader {
		if err := csvWriter.Write(productColumns); err != nil {
			return fmt.Errorf("writing CSV header: %w", err)
		}
	}
	for _, r := range records {
		for i, p := range r.Products {
			if err := csvWriter.Write(productRow(r, p)); err != nil {
				return fmt.Errorf("writing CSV row %d of %s: %w", i, r.DocumentID, err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func productRow(r *StructuredRecord, p Product) []string {
	row := []string{r.DocumentID, str(r.Project.QuotationNo), "", str(p.Name), str(p.Description)}
	if p.SrNo != nil {
		row[2] = strconv.FormatInt(*p.SrNo, 10)
	}
	if d := p.Dimensions; d != nil {
		row = append(row, formatFloat(d.Width), formatFloat(d.Depth), formatFloat(d.Height), d.Unit)
	} else {
		row = append(row, "", "", "", "")
	}
	row = append(row,
		flt(p.Area),
		str(p.Material),
		str(p.Finish),
		flt(p.Qty),
		flt(p.UnitPrice),
		flt(p.Amount),
		strconv.Itoa(len(p.Images)),
		formatFloat(p.Confidence),
		string(p.Status),
	)
	return row
}

func (e *Exporter) exportXLSX(records []*StructuredRecord, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, r := range records {
		sheet := sheetName(r, i)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		if err := writeSheet(f, sheet, r); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", sheet, err)
		}
	}

	const issues = "Issues"
	if _, err := f.NewSheet(issues); err != nil {
		return err
	}
	xl := sheetWriter{f: f, sheet: issues}
	xl.row("document_id", "field_path", "kind", "message")
	for _, r := range records {
		for _, iss := range r.Issues {
			xl.row(r.DocumentID, iss.FieldPath, string(iss.Kind), iss.Message)
		}
	}
	if xl.err != nil {
		return xl.err
	}
	_ = f.SetColWidth(issues, "A", "A", 38)
	_ = f.SetColWidth(issues, "B", "C", 24)
	_ = f.SetColWidth(issues, "D", "D", 80)
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// writeSheet lays out one record: the header block, the product table and
// the summary block.
func writeSheet(f *excelize.File, sheet string, r *StructuredRecord) error {
	xl := sheetWriter{f: f, sheet: sheet}
	xl.row("Document", r.DocumentID)
	xl.row("Status", string(r.Status))
	xl.row("Confidence", r.Confidence)
	if r.Template != nil {
		xl.row("Template", r.Template.Name+" v"+r.Template.Version)
	}
	xl.row("Project Name", value(r.Project.ProjectName))
	xl.row("Client Name", value(r.Project.ClientName))
	xl.row("Quotation No", value(r.Project.QuotationNo))
	xl.row("Date", value(r.Project.Date))
	xl.row("Prepared By", value(r.Project.PreparedBy))
	xl.row()

	xl.row("S.No", "Name", "Description", "Dimensions", "Area", "Material", "Finish", "Qty", "Unit Price", "Amount", "Images", "Status")
	for _, p := range r.Products {
		dims := any(nil)
		if p.Dimensions != nil {
			dims = p.Dimensions.String()
		}
		srNo := any(nil)
		if p.SrNo != nil {
			srNo = *p.SrNo
		}
		xl.row(srNo, value(p.Name), value(p.Description), dims, value(p.Area),
			value(p.Material), value(p.Finish), value(p.Qty), value(p.UnitPrice), value(p.Amount),
			len(p.Images), string(p.Status))
	}
	xl.row()

	xl.row("Sub Total", value(r.Summary.Subtotal))
	xl.row("Tax", value(r.Summary.Tax))
	xl.row("Grand Total", value(r.Summary.GrandTotal))
	xl.row("Summary Status", string(r.Summary.Status))

	_ = f.SetColWidth(sheet, "A", "A", 16)
	_ = f.SetColWidth(sheet, "B", "C", 30)
	_ = f.SetColWidth(sheet, "D", "D", 22)
	_ = f.SetColWidth(sheet, "E", "L", 12)
	return xl.err
}

// sheetWriter appends rows to a worksheet and keeps the first error.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	next  int
	err   error
}

func (s *sheetWriter) row(values ...any) {
	s.next++
	if s.err != nil || len(values) == 0 {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, s.next)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetSheetRow(s.sheet, cell, &values)
}

// sheetName returns a worksheet name of at most 31 characters.
func sheetName(r *StructuredRecord, i int) string {
	name := fmt.Sprintf("Quotation %d", i+1)
	if r.Project.QuotationNo != nil && *r.Project.QuotationNo != "" {
		name = fmt.Sprintf("%d %s", i+1, *r.Project.QuotationNo)
	}
	clean := make([]rune, 0, len(name))
	for _, c := range name {
		switch c {
		case ':', '\\', '/', '?', '*', '[', ']':
			c = '-'
		}
		clean = append(clean, c)
	}
	if len(clean) > 31 {
		clean = clean[:31]
	}
	return string(clean)
}

func value[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func flt(p *float64) string {
	if p == nil {
		return ""
	}
	return formatFloat(*p)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
