package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"code.sajari.com/docconv"

	"github.com/lexium-ai/lexium/internal/logger"
)

// extraction strategies, keyed from the static MIME table below.
type strategy int

const (
	strategyText strategy = iota
	strategyJSON
	strategyWord
	strategyPDF
	strategyImage
)

// mimeStrategies is the primary dispatch table. Unknown MIME types fall
// through to the extension table; anything not found in either is an
// ErrUnsupportedType (which validation normally catches first).
var mimeStrategies = map[string]strategy{
	"text/plain":       strategyText,
	"text/markdown":    strategyText,
	"text/csv":         strategyText,
	"application/json": strategyJSON,
	"application/msword": strategyWord,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": strategyWord,
	"application/pdf": strategyPDF,
	"image/png":       strategyImage,
	"image/jpeg":      strategyImage,
	"image/gif":       strategyImage,
	"image/webp":      strategyImage,
}

var extStrategies = map[string]strategy{
	"txt": strategyText, "md": strategyText, "csv": strategyText,
	"json": strategyJSON,
	"doc":  strategyWord, "docx": strategyWord,
	"pdf": strategyPDF,
	"png": strategyImage, "jpg": strategyImage, "jpeg": strategyImage,
	"gif": strategyImage, "webp": strategyImage,
}

// Dispatcher routes a file to its extraction strategy by declared MIME type,
// with an extension fallback when the MIME type is absent or generic.
type Dispatcher struct {
	runner     HelperRunner
	pdfTimeout time.Duration
	ocrTimeout time.Duration
	log        *logger.Logger
}

func NewDispatcher(runner HelperRunner, pdfTimeout, ocrTimeout time.Duration, log *logger.Logger) *Dispatcher {
	if pdfTimeout <= 0 {
		pdfTimeout = 30 * time.Second
	}
	if ocrTimeout <= 0 {
		ocrTimeout = 60 * time.Second
	}
	return &Dispatcher{
		runner:     runner,
		pdfTimeout: pdfTimeout,
		ocrTimeout: ocrTimeout,
		log:        log.With("component", "extract"),
	}
}

// Extract produces text and a page count for one file. The only hard
// failures are an unsupported type and a signature mismatch; every other
// problem degrades inside the strategy and still yields text.
func (d *Dispatcher) Extract(ctx context.Context, data []byte, fileName, mimeType string) (Extraction, error) {
	strat, ok := mimeStrategies[strings.ToLower(strings.TrimSpace(mimeType))]
	if !ok {
		strat, ok = extStrategies[fileExtension(fileName)]
	}
	if !ok {
		return Extraction{}, fmt.Errorf("%w: %q (%s)", ErrUnsupportedType, fileName, mimeType)
	}

	switch strat {
	case strategyText:
		return Extraction{Text: string(data), PageCount: 1}, nil
	case strategyJSON:
		return extractJSON(data), nil
	case strategyWord:
		return d.extractWord(data, fileName, mimeType), nil
	case strategyPDF:
		return d.extractPDF(ctx, data, fileName)
	case strategyImage:
		return d.extractImage(ctx, data, fileName)
	default:
		return Extraction{}, fmt.Errorf("%w: %q (%s)", ErrUnsupportedType, fileName, mimeType)
	}
}

// extractJSON pretty-prints valid JSON for readability; invalid JSON passes
// through raw rather than failing.
func extractJSON(data []byte) Extraction {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return Extraction{Text: string(data), PageCount: 1}
	}
	return Extraction{Text: buf.String(), PageCount: 1}
}

// extractWord converts doc/docx in process via docconv. There is no helper
// for the Word family; a conversion failure yields an explanatory
// placeholder, not an error.
func (d *Dispatcher) extractWord(data []byte, fileName, mimeType string) Extraction {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if mt == "" || mt == "application/octet-stream" {
		if fileExtension(fileName) == "doc" {
			mt = "application/msword"
		} else {
			mt = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		}
	}

	res, err := docconv.Convert(bytes.NewReader(data), mt, false)
	if err != nil || strings.TrimSpace(res.Body) == "" {
		reason := "conversion produced no text"
		if err != nil {
			reason = "the document could not be parsed"
			d.log.Warn("word extraction failed", "file", fileName, "err", err)
		}
		text := fmt.Sprintf(
			"[Word Document: %s]\n\n"+
				"Text could not be extracted from this document (%s).\n"+
				"The original file (%s) has been stored in your knowledge base.",
			fileName, reason, formatSize(int64(len(data))))
		return Extraction{Text: text, PageCount: 1}
	}

	return Extraction{Text: res.Body, PageCount: 1}
}
