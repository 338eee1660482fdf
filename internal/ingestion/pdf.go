package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// extractPDF runs the PDF fallback chain:
// header check -> helper process -> in-process library -> placeholder.
// Only the header check can fail the file; every later stage degrades into
// the next one, and the placeholder always succeeds.
func (d *Dispatcher) extractPDF(ctx context.Context, data []byte, fileName string) (Extraction, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return Extraction{}, fmt.Errorf("%w: missing %%PDF header in %q", ErrBadSignature, fileName)
	}

	var helperErr string

	stages := []stage{
		{
			name: "helper",
			run: func(ctx context.Context) (Extraction, bool, string) {
				res := d.runner.Run(ctx, HelperPDF, data, d.pdfTimeout)
				if res.Success && strings.TrimSpace(res.Text) != "" {
					pages := res.PageCount
					if pages <= 0 {
						pages = 1
					}
					return Extraction{Text: res.Text, PageCount: pages}, true, ""
				}
				helperErr = res.Error
				return Extraction{}, false, res.Error
			},
		},
		{
			name: "library",
			run: func(ctx context.Context) (Extraction, bool, string) {
				text, pages, err := parsePDFInProcess(data)
				if err != nil {
					return Extraction{}, false, err.Error()
				}
				cleaned := CleanText(text)
				if len(cleaned) <= 10 {
					return Extraction{}, false, "library produced no usable text"
				}
				return Extraction{Text: cleaned, PageCount: pages}, true, ""
			},
		},
		{
			name: "placeholder",
			run: func(ctx context.Context) (Extraction, bool, string) {
				text := pdfPlaceholder(fileName, int64(len(data)), helperErr)
				return Extraction{Text: text, PageCount: 1}, true, ""
			},
		},
	}

	out, winner, reasons := runChain(ctx, stages)
	if winner != "helper" {
		d.log.Info("pdf extraction degraded", "file", fileName, "stage", winner, "reasons", strings.Join(reasons, "; "))
	}
	return out, nil
}

// parsePDFInProcess is the lower-fidelity library fallback. The parser is
// known to panic on some malformed inputs, so the panic is converted into an
// ordinary stage failure.
func parsePDFInProcess(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("pdf reader: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", 0, fmt.Errorf("pdf read: %w", err)
	}

	pages = r.NumPage()
	if pages <= 0 {
		pages = 1
	}
	return string(b), pages, nil
}

// pdfPlaceholder produces the guaranteed terminal output: deterministic,
// human-readable text naming the file and a categorized reason. Subprocess
// internals never reach the end user.
func pdfPlaceholder(fileName string, size int64, helperErr string) string {
	reason := categorizePDFFailure(helperErr)
	return fmt.Sprintf(
		"[PDF Document: %s]\n\n"+
			"Text could not be extracted from this PDF automatically (reason: %s).\n"+
			"The original file (%s) has been stored in your knowledge base and can be re-processed later.",
		fileName, reason, formatSize(size))
}

func categorizePDFFailure(helperErr string) string {
	e := strings.ToLower(helperErr)
	switch {
	case strings.Contains(e, "password") || strings.Contains(e, "encrypt"):
		return "password-protected"
	case strings.Contains(e, "corrupt") || strings.Contains(e, "damaged") ||
		strings.Contains(e, "malformed") || strings.Contains(e, "truncated"):
		return "corrupted"
	case strings.Contains(e, "timed out"):
		return "extraction timed out"
	default:
		return "extraction unavailable"
	}
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
