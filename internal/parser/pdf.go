package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// OCRConfig controls the scanned-page fallback. Pages without a text layer
// are rendered with pdftoppm and recognised with tesseract.
type OCRConfig struct {
	Enabled bool
	Lang    string
	DPI     int
}

// PDFParser handles PDF files. It tries the Go library first, OCRs pages
// that carry no text, and falls back to pdftotext if the library fails on
// the whole document.
type PDFParser struct {
	FallbackPdftotext bool
	OCR               OCRConfig
}

// errNoOCRTools is returned when OCR is enabled but the binaries are missing.
var errNoOCRTools = errors.New("pdftoppm or tesseract not found in PATH")

func (p *PDFParser) Parse(r io.Reader, filename string) (*Parsed, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "corpusqa-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	pages, err := extractPDFPages(tmpPath)
	if err != nil && p.FallbackPdftotext {
		var text string
		text, err = extractPdftotext(tmpPath)
		pages = splitPages(text)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	if p.OCR.Enabled {
		for i, page := range pages {
			if strings.TrimSpace(page) != "" {
				continue
			}
			text, err := ocrPage(tmpPath, i+1, p.OCR)
			if err != nil {
				// One unreadable page does not sink the document.
				if errors.Is(err, errNoOCRTools) {
					break
				}
				continue
			}
			pages[i] = text
		}
	}

	return &Parsed{
		Title: baseTitle(filename),
		Text:  joinParagraphs(pages),
	}, nil
}

// extractPDFPages returns one entry per page; pages without a text layer
// yield "".
func extractPDFPages(path string) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

// ocrPage renders a single page to PNG and runs tesseract on it.
func ocrPage(pdfPath string, page int, cfg OCRConfig) (string, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return "", errNoOCRTools
	}
	if _, err := exec.LookPath("tesseract"); err != nil {
		return "", errNoOCRTools
	}

	dir, err := os.MkdirTemp("", "corpusqa-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = 300
	}
	lang := cfg.Lang
	if lang == "" {
		lang = "rus+eng"
	}

	n := strconv.Itoa(page)
	prefix := filepath.Join(dir, "page")
	render := exec.Command("pdftoppm", "-f", n, "-l", n, "-r", strconv.Itoa(dpi), "-png", "-singlefile", pdfPath, prefix)
	if out, err := render.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm page %d: %w: %s", page, err, strings.TrimSpace(string(out)))
	}

	ocr := exec.Command("tesseract", prefix+".png", "stdout", "-l", lang)
	out, err := ocr.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract page %d: %w", page, err)
	}
	return string(out), nil
}

func splitPages(text string) []string {
	return strings.Split(text, "\f")
}
