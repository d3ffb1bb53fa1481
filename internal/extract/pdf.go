package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

const emptyPDFSentinel = "[PDF extracted but empty]"

// extractPDF tries the cheap local parse first and escalates to whole-
// document vision OCR only when the local text is implausibly short or the
// parse fails outright.
func (d *Dispatcher) extractPDF(ctx context.Context, path string) (*Result, error) {
	text, pageCount, localErr := d.readPDF(path)
	if localErr == nil && len(text) >= pdfLocalMinChars {
		return &Result{Text: text, Method: MethodLocal, PageCount: &pageCount}, nil
	}

	if localErr != nil {
		log.Warn().Err(localErr).Str("path", path).Msg("Local PDF parse failed, falling back to vision OCR")
	} else {
		log.Debug().Int("chars", len(text)).Str("path", path).Msg("Local PDF text too short, falling back to vision OCR")
	}

	if d.ocr == nil {
		if localErr != nil {
			return nil, &FailureError{Path: path, Err: localErr}
		}
		return shortPDFResult(text, pageCount), nil
	}

	ocrCtx, cancel := context.WithTimeout(ctx, d.ocrTimeout)
	defer cancel()
	ocrText, err := d.ocr.ExtractDocument(ocrCtx, path)
	if err != nil {
		if localErr != nil {
			return nil, &FailureError{Path: path, Err: fmt.Errorf("local: %v; ocr: %w", localErr, err)}
		}
		// The local parse worked, it just found little text. Degrade to
		// what we have rather than failing the ingestion.
		log.Warn().Err(err).Str("path", path).Msg("Vision OCR fallback failed, keeping short local text")
		return shortPDFResult(text, pageCount), nil
	}

	res := &Result{Text: ocrText, Method: MethodVision}
	if localErr == nil {
		res.PageCount = &pageCount
	}
	return res, nil
}

func shortPDFResult(text string, pageCount int) *Result {
	if text == "" {
		text = emptyPDFSentinel
	}
	return &Result{Text: text, Method: MethodLocal, PageCount: &pageCount}
}

// readPDFLocal extracts plain text page by page. The pdf package panics on
// some malformed content streams, so the whole parse is guarded.
func readPDFLocal(path string) (text string, pageCount int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", 0, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", 0, err
	}

	var b strings.Builder
	pageCount = reader.NumPage()
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", pageCount, err
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), pageCount, nil
}
