package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tealeg/xlsx"
)

// fakeOCR returns canned text and records what it was asked to read.
type fakeOCR struct {
	text     string
	err      error
	images   []string
	docs     []string
	deadline time.Time
}

func (f *fakeOCR) ExtractImage(ctx context.Context, path, mimeType string) (string, error) {
	if dl, ok := ctx.Deadline(); ok {
		f.deadline = dl
	}
	f.images = append(f.images, path)
	return f.text, f.err
}

func (f *fakeOCR) ExtractDocument(_ context.Context, path string) (string, error) {
	f.docs = append(f.docs, path)
	return f.text, f.err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeZip(t *testing.T, name string, entries map[string][]byte, order []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for _, entry := range order {
		ew, err := w.Create(entry)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ew.Write(entries[entry]); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractPlainText(t *testing.T) {
	d := NewDispatcher(nil)
	path := writeFile(t, "notes.txt", []byte("heat flows downhill\n"))

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "heat flows downhill" || res.Method != MethodLocal {
		t.Fatalf("result = %+v", res)
	}
	if len(res.ImageTexts) != 0 || res.PageCount != nil {
		t.Fatalf("plain text should carry no image texts or page count: %+v", res)
	}
}

func TestExtractMarkdownVerbatim(t *testing.T) {
	d := NewDispatcher(nil)
	content := "# Heat\n\nSome *markdown* stays as-is."
	path := writeFile(t, "notes.md", []byte(content))

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != content {
		t.Fatalf("markdown must be verbatim, got %q", res.Text)
	}
}

func TestExtractEmptyFileSentinel(t *testing.T) {
	d := NewDispatcher(nil)
	path := writeFile(t, "empty.txt", []byte("   \n"))

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != emptyFileSentinel {
		t.Fatalf("text = %q, want sentinel", res.Text)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	d := NewDispatcher(nil)
	_, err := d.Extract(context.Background(), "archive.tar.zzz")
	var ufe *UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
	if ufe.Ext != ".zzz" {
		t.Errorf("Ext = %q, want .zzz", ufe.Ext)
	}
}

func TestExtractImageUsesVision(t *testing.T) {
	ocr := &fakeOCR{text: "handwritten lecture notes"}
	d := NewDispatcher(ocr)
	path := writeFile(t, "board.png", []byte("not-a-real-png"))

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodVision || res.Text != "handwritten lecture notes" {
		t.Fatalf("result = %+v", res)
	}
	if len(ocr.images) != 1 {
		t.Fatalf("vision called %d times, want 1", len(ocr.images))
	}
}

func TestExtractImageFailurePropagates(t *testing.T) {
	d := NewDispatcher(&fakeOCR{err: errors.New("service down")})
	path := writeFile(t, "scan.jpg", []byte("x"))

	_, err := d.Extract(context.Background(), path)
	var fe *FailureError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FailureError, got %v", err)
	}
}

func TestExtractPDFFallsBackOnParseFailure(t *testing.T) {
	ocr := &fakeOCR{text: strings.Repeat("scanned page text. ", 10)}
	d := NewDispatcher(ocr)
	path := writeFile(t, "scan.pdf", []byte("this is not a pdf at all"))

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodVision {
		t.Fatalf("method = %q, want vision fallback", res.Method)
	}
	if len(ocr.docs) != 1 {
		t.Fatalf("whole-document OCR called %d times, want 1", len(ocr.docs))
	}
}

func TestExtractPDFShortTextEscalatesToOCR(t *testing.T) {
	ocr := &fakeOCR{text: strings.Repeat("full page of scanned text. ", 20)}
	d := NewDispatcher(ocr)
	// Local parse succeeds but yields far fewer than 100 characters, the
	// signature of a scanned PDF with a stub text layer.
	d.readPDF = func(string) (string, int, error) {
		return "forty characters of local text, roughly", 3, nil
	}
	path := writeFile(t, "scanned.pdf", []byte("ignored"))

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodVision {
		t.Fatalf("method = %q, want vision fallback for short local text", res.Method)
	}
	if res.Text != ocr.text {
		t.Fatalf("text = %q", res.Text)
	}
	if res.PageCount == nil || *res.PageCount != 3 {
		t.Fatalf("pageCount = %v, want 3 from the successful local parse", res.PageCount)
	}
	if len(ocr.docs) != 1 {
		t.Fatalf("whole-document OCR called %d times, want 1", len(ocr.docs))
	}
}

func TestExtractPDFShortTextKeptWhenOCRFails(t *testing.T) {
	d := NewDispatcher(&fakeOCR{err: errors.New("ocr down")})
	d.readPDF = func(string) (string, int, error) {
		return "just a title", 1, nil
	}
	path := writeFile(t, "scanned.pdf", []byte("ignored"))

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("short local text must survive an OCR outage: %v", err)
	}
	if res.Method != MethodLocal || res.Text != "just a title" {
		t.Fatalf("result = %+v", res)
	}
	if res.PageCount == nil || *res.PageCount != 1 {
		t.Fatalf("pageCount = %v", res.PageCount)
	}
}

func TestExtractPDFBothTiersFailing(t *testing.T) {
	d := NewDispatcher(&fakeOCR{err: errors.New("ocr down")})
	path := writeFile(t, "scan.pdf", []byte("still not a pdf"))

	_, err := d.Extract(context.Background(), path)
	var fe *FailureError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FailureError, got %v", err)
	}
}

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

func TestExtractDOCX(t *testing.T) {
	ocr := &fakeOCR{text: "diagram of a heat engine"}
	d := NewDispatcher(ocr)

	document := `<?xml version="1.0"?><w:document><w:body>` +
		`<w:p><w:r><w:t>Thermodynamics chapter one.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Heat is energy in transit.</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	path := writeZip(t, "chapter.docx", map[string][]byte{
		"word/document.xml":            []byte(document),
		"word/_rels/document.xml.rels": []byte(docxRels),
		"word/media/image1.png":        []byte("fake image bytes"),
	}, []string{"word/document.xml", "word/_rels/document.xml.rels", "word/media/image1.png"})

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodLocal {
		t.Errorf("method = %q", res.Method)
	}
	if !strings.Contains(res.Text, "Thermodynamics chapter one.") || !strings.Contains(res.Text, "Heat is energy in transit.") {
		t.Fatalf("text runs missing: %q", res.Text)
	}
	if len(res.ImageTexts) != 1 || res.ImageTexts[0] != "[Embedded Image]: diagram of a heat engine" {
		t.Fatalf("imageTexts = %v", res.ImageTexts)
	}
}

func TestExtractDOCXOCRFailureIsSkipped(t *testing.T) {
	d := NewDispatcher(&fakeOCR{err: errors.New("ocr down")})

	path := writeZip(t, "chapter.docx", map[string][]byte{
		"word/document.xml":            []byte(`<w:document><w:body><w:p><w:r><w:t>Body text survives.</w:t></w:r></w:p></w:body></w:document>`),
		"word/_rels/document.xml.rels": []byte(docxRels),
		"word/media/image1.png":        []byte("fake"),
	}, []string{"word/document.xml", "word/_rels/document.xml.rels", "word/media/image1.png"})

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("per-image OCR failure must not fail the extraction: %v", err)
	}
	if !strings.Contains(res.Text, "Body text survives.") {
		t.Fatalf("text = %q", res.Text)
	}
	if len(res.ImageTexts) != 0 {
		t.Fatalf("failed image should be skipped, got %v", res.ImageTexts)
	}
}

func TestExtractPPTXSlideOrder(t *testing.T) {
	ocr := &fakeOCR{text: "chart contents"}
	d := NewDispatcher(ocr)

	slide := func(text string) []byte {
		return []byte(fmt.Sprintf(`<p:sld><p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody></p:sld>`, text))
	}
	// Entries deliberately out of order in the archive.
	path := writeZip(t, "deck.pptx", map[string][]byte{
		"ppt/slides/slide2.xml": slide("Second slide"),
		"ppt/slides/slide1.xml": slide("First slide"),
		"ppt/media/image1.png":  []byte("fake"),
	}, []string{"ppt/slides/slide2.xml", "ppt/slides/slide1.xml", "ppt/media/image1.png"})

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	first := strings.Index(res.Text, "[Slide 1]")
	second := strings.Index(res.Text, "[Slide 2]")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("slides out of order: %q", res.Text)
	}
	if !strings.Contains(res.Text, "First slide") || !strings.Contains(res.Text, "Second slide") {
		t.Fatalf("slide text missing: %q", res.Text)
	}
	if len(res.ImageTexts) != 1 || res.ImageTexts[0] != "[Slide Image]: chart contents" {
		t.Fatalf("imageTexts = %v", res.ImageTexts)
	}
}

func TestExtractXLSX(t *testing.T) {
	d := NewDispatcher(nil)

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Grades")
	if err != nil {
		t.Fatal(err)
	}
	row := sheet.AddRow()
	row.AddCell().Value = "midterm"
	row.AddCell().Value = "87"
	path := filepath.Join(t.TempDir(), "grades.xlsx")
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}

	res, err := d.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodLocal {
		t.Errorf("method = %q", res.Method)
	}
	if !strings.Contains(res.Text, "[Sheet: Grades]") {
		t.Fatalf("sheet marker missing: %q", res.Text)
	}
	if !strings.Contains(res.Text, "midterm,87") {
		t.Fatalf("CSV row missing: %q", res.Text)
	}
}

func TestWithOCRTimeout(t *testing.T) {
	ocr := &fakeOCR{text: "ocr text"}
	d := NewDispatcher(ocr).WithOCRTimeout(5 * time.Second)
	path := writeFile(t, "board.png", []byte("x"))

	before := time.Now()
	if _, err := d.Extract(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if ocr.deadline.IsZero() {
		t.Fatal("no deadline on the OCR context")
	}
	if rem := ocr.deadline.Sub(before); rem <= 0 || rem > 5*time.Second+time.Second {
		t.Fatalf("deadline %v from call time, want about 5s", rem)
	}

	// Non-positive override keeps the default.
	d2 := NewDispatcher(ocr).WithOCRTimeout(0)
	if d2.ocrTimeout != defaultOCRTimeout {
		t.Fatalf("ocrTimeout = %v", d2.ocrTimeout)
	}
}

func TestTextRuns(t *testing.T) {
	in := `<w:p><w:tbl/><w:t>alpha</w:t><w:tab/><w:t xml:space="preserve">beta </w:t><w:t/></w:p>`
	got := textRuns(in, "w:t")
	if !strings.Contains(got, "alpha") || !strings.Contains(got, "beta") {
		t.Fatalf("textRuns = %q", got)
	}
	if strings.Contains(got, "tbl") || strings.Contains(got, "tab") {
		t.Fatalf("matched sibling tags: %q", got)
	}
}
