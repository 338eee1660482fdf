package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// imageSignatures holds the magic bytes of the supported raster formats.
var imageSignatures = [][]byte{
	{0x89, 'P', 'N', 'G'},       // png
	{0xFF, 0xD8, 0xFF},          // jpeg
	[]byte("GIF8"),              // gif
	[]byte("RIFF"),              // webp (RIFF container, checked further below)
}

func looksLikeImage(data []byte) bool {
	for _, sig := range imageSignatures {
		if bytes.HasPrefix(data, sig) {
			// RIFF is shared with wav/avi; require the WEBP fourcc.
			if sig[0] == 'R' {
				return len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP"))
			}
			return true
		}
	}
	return false
}

// extractImage runs the OCR chain: signature check -> helper -> placeholder.
// There is no reliable lightweight in-process OCR, so unlike PDF there is no
// library stage between the helper and the placeholder.
func (d *Dispatcher) extractImage(ctx context.Context, data []byte, fileName string) (Extraction, error) {
	if !looksLikeImage(data) {
		return Extraction{}, fmt.Errorf("%w: %q is not a recognized image", ErrBadSignature, fileName)
	}

	var helperErr string
	var timedOut bool

	stages := []stage{
		{
			name: "ocr",
			run: func(ctx context.Context) (Extraction, bool, string) {
				res := d.runner.Run(ctx, HelperOCR, data, d.ocrTimeout)
				if res.Success && strings.TrimSpace(res.Text) != "" {
					return Extraction{Text: res.Text, PageCount: 1}, true, ""
				}
				helperErr = res.Error
				timedOut = res.TimedOut
				return Extraction{}, false, res.Error
			},
		},
		{
			name: "placeholder",
			run: func(ctx context.Context) (Extraction, bool, string) {
				text := imagePlaceholder(fileName, int64(len(data)), helperErr, timedOut)
				return Extraction{Text: text, PageCount: 1}, true, ""
			},
		},
	}

	out, winner, reasons := runChain(ctx, stages)
	if winner != "ocr" {
		d.log.Info("image extraction degraded", "file", fileName, "reasons", strings.Join(reasons, "; "))
	}
	return out, nil
}

// imagePlaceholder differentiates "nothing to read" from "could not read", so
// the end user gets actionable guidance instead of a stack trace.
func imagePlaceholder(fileName string, size int64, helperErr string, timedOut bool) string {
	header := fmt.Sprintf("[Image: %s]\n\n", fileName)
	footer := fmt.Sprintf("\nThe original image (%s) has been stored in your knowledge base.", formatSize(size))

	e := strings.ToLower(helperErr)
	switch {
	case strings.Contains(e, "no text"):
		return header +
			"No readable text was detected in this image. If the image contains text, " +
			"try a higher-resolution version or a tighter crop around the text." + footer
	case strings.Contains(e, "quality") || strings.Contains(e, "blur") ||
		strings.Contains(e, "low confidence") || strings.Contains(e, "resolution"):
		return header +
			"The image quality was too low for reliable text recognition. " +
			"A sharper scan or photo will usually fix this." + footer
	case timedOut:
		return header +
			"Text recognition did not finish in time for this image. " +
			"Smaller or simpler images process faster; you can also retry later." + footer
	default:
		return header +
			"Text recognition failed for this image due to a technical problem. " +
			"You can retry the upload later." + footer
	}
}
