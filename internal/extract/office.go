package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
)

const (
	embeddedImageTag = "[Embedded Image]"
	slideImageTag    = "[Slide Image]"
)

func (d *Dispatcher) extractDOCX(ctx context.Context, path string) (*Result, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	text := strings.TrimSpace(textRuns(content, "w:t"))

	imageTexts := d.ocrEmbeddedMedia(ctx, path, "word/media/", embeddedImageTag)
	return &Result{Text: text, ImageTexts: imageTexts, Method: MethodLocal}, nil
}

func (d *Dispatcher) extractPPTX(ctx context.Context, path string) (*Result, error) {
	f, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		if n, ok := slideNumber(file.Name); ok {
			slides = append(slides, slide{num: n, file: file})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var text strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slideText := strings.TrimSpace(textRuns(string(data), "a:t"))
		if slideText == "" {
			continue
		}
		fmt.Fprintf(&text, "[Slide %d]\n%s\n\n", s.num, slideText)
	}

	imageTexts := d.ocrEmbeddedMedia(ctx, path, "ppt/media/", slideImageTag)
	return &Result{Text: strings.TrimSpace(text.String()), ImageTexts: imageTexts, Method: MethodLocal}, nil
}

// slideNumber parses the ordinal out of "ppt/slides/slideN.xml".
func slideNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ocrEmbeddedMedia enumerates image entries under prefix in the zip
// container and runs each through the vision OCR service. Per-image
// failures are logged and skipped, never failing the whole extraction; the
// scoped temp file for each image is removed on every exit path.
func (d *Dispatcher) ocrEmbeddedMedia(ctx context.Context, path, prefix, tag string) []string {
	if d.ocr == nil {
		return nil
	}
	f, err := zip.OpenReader(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Cannot reopen container for embedded media")
		return nil
	}
	defer f.Close()

	var texts []string
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, prefix) || !isImageName(file.Name) {
			continue
		}
		text, err := d.ocrZipEntry(ctx, file)
		if err != nil {
			log.Warn().Err(err).Str("entry", file.Name).Msg("Embedded image OCR failed, skipping")
			continue
		}
		if text == "" {
			continue
		}
		texts = append(texts, fmt.Sprintf("%s: %s", tag, text))
	}
	return texts
}

// ocrZipEntry writes one media entry to its own temp file and OCRs it.
func (d *Dispatcher) ocrZipEntry(ctx context.Context, file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	ext := strings.ToLower(filepath.Ext(file.Name))
	tmp, err := os.CreateTemp("", "embedded-*"+ext)
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil {
			log.Warn().Err(err).Str("path", tmpPath).Msg("Failed to remove temp image")
		}
	}()

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	ocrCtx, cancel := context.WithTimeout(ctx, d.ocrTimeout)
	defer cancel()
	return d.ocr.ExtractImage(ocrCtx, tmpPath, mimeForExt(ext))
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

// textRuns pulls the inline text runs for one OOXML tag ("w:t" for
// word-processor documents, "a:t" for slides) out of raw part XML.
func textRuns(xmlContent, tag string) string {
	var text strings.Builder
	open := "<" + tag
	closing := "</" + tag + ">"
	rest := xmlContent
	for {
		i := strings.Index(rest, open)
		if i < 0 {
			break
		}
		rest = rest[i+len(open):]
		j := strings.Index(rest, ">")
		if j < 0 {
			break
		}
		head := rest[:j]
		rest = rest[j+1:]
		// Same prefix but a different tag (w:tbl and friends), or a
		// self-closing empty run.
		if head != "" && head[0] != ' ' {
			continue
		}
		if strings.HasSuffix(head, "/") {
			continue
		}
		k := strings.Index(rest, closing)
		if k < 0 {
			break
		}
		text.WriteString(rest[:k])
		text.WriteString(" ")
		rest = rest[k+len(closing):]
	}
	return text.String()
}
