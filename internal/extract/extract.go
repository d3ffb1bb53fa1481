package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"course-rag/internal/vision"

	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

// Method records which tier of the pipeline produced the text.
type Method string

const (
	MethodLocal  Method = "local"
	MethodVision Method = "external_vision"
)

const (
	// pdfLocalMinChars is the plausibility threshold for local PDF text.
	// Anything shorter is a strong signal of a scanned/image-only PDF and
	// escalates to the vision OCR fallback.
	pdfLocalMinChars = 100

	// defaultOCRTimeout bounds each external OCR call.
	defaultOCRTimeout = 2 * time.Minute

	emptyFileSentinel = "[Empty file]"
)

// Result is the transient output of one extraction, consumed immediately by
// the chunker.
type Result struct {
	Text       string
	ImageTexts []string
	Method     Method
	PageCount  *int
}

// UnsupportedFormatError names the extension no strategy covers.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Ext)
}

// FailureError means local parsing failed and any fallback failed too.
type FailureError struct {
	Path string
	Err  error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Path, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

type strategyFn func(ctx context.Context, path string) (*Result, error)

// Dispatcher selects an extraction strategy by file extension. Local
// parsing is always preferred; the external OCR service is used only where
// local extraction is structurally incapable (raster images) or empirically
// insufficient (short PDF text).
type Dispatcher struct {
	ocr        vision.OCR
	ocrTimeout time.Duration
	readPDF    func(path string) (text string, pageCount int, err error)
	strategies map[string]strategyFn
}

func NewDispatcher(ocr vision.OCR) *Dispatcher {
	d := &Dispatcher{ocr: ocr, ocrTimeout: defaultOCRTimeout, readPDF: readPDFLocal}
	d.strategies = map[string]strategyFn{
		".txt":  d.extractPlain,
		".md":   d.extractPlain,
		".docx": d.extractDOCX,
		".xlsx": d.extractXLSX,
		".xls":  d.extractXLS,
		".pptx": d.extractPPTX,
		".ppt":  d.extractPPTX,
		".pdf":  d.extractPDF,
		".png":  d.extractImage,
		".jpg":  d.extractImage,
		".jpeg": d.extractImage,
		".gif":  d.extractImage,
		".webp": d.extractImage,
	}
	return d
}

// WithOCRTimeout overrides the default per-call OCR deadline.
func (d *Dispatcher) WithOCRTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.ocrTimeout = timeout
	}
	return d
}

// Extract produces the text of one file, selecting the strategy by
// extension. Unknown extensions fail with UnsupportedFormatError.
func (d *Dispatcher) Extract(ctx context.Context, path string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := d.strategies[ext]
	if !ok {
		return nil, &UnsupportedFormatError{Ext: ext}
	}
	return fn(ctx, path)
}

func (d *Dispatcher) extractPlain(_ context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		text = emptyFileSentinel
	}
	return &Result{Text: text, Method: MethodLocal}, nil
}

func (d *Dispatcher) extractXLSX(_ context.Context, path string) (*Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				cells[i] = cell.String()
			}
			rows = append(rows, cells)
		}
		writeSheet(&text, sheet.Name, rows)
	}
	return &Result{Text: strings.TrimSpace(text.String()), Method: MethodLocal}, nil
}

func (d *Dispatcher) extractXLS(_ context.Context, path string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		writeSheet(&text, sheetName, rows)
	}
	return &Result{Text: strings.TrimSpace(text.String()), Method: MethodLocal}, nil
}

// writeSheet renders one sheet as a "[Sheet: name]" marker followed by CSV.
func writeSheet(b *strings.Builder, name string, rows [][]string) {
	fmt.Fprintf(b, "[Sheet: %s]\n", name)
	w := csv.NewWriter(b)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		_ = w.Write(row)
	}
	w.Flush()
	b.WriteString("\n")
}

func (d *Dispatcher) extractImage(ctx context.Context, path string) (*Result, error) {
	if d.ocr == nil {
		return nil, &FailureError{Path: path, Err: vision.ErrNotConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, d.ocrTimeout)
	defer cancel()

	text, err := d.ocr.ExtractImage(ctx, path, mimeForExt(filepath.Ext(path)))
	if err != nil {
		return nil, &FailureError{Path: path, Err: err}
	}
	return &Result{Text: text, Method: MethodVision}, nil
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
