package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lexium-ai/lexium/internal/models"
)

// supportedMimeTypes maps every accepted MIME type to its canonical
// extension. The extension set below is the secondary lookup used when the
// client sends no MIME type or a generic one.
var supportedMimeTypes = map[string]string{
	"application/pdf":    "pdf",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"text/plain":       "txt",
	"text/markdown":    "md",
	"application/json": "json",
	"text/csv":         "csv",
	"image/png":        "png",
	"image/jpeg":       "jpg",
	"image/gif":        "gif",
	"image/webp":       "webp",
}

var supportedExtensions = map[string]bool{
	"pdf": true, "doc": true, "docx": true,
	"txt": true, "md": true, "json": true, "csv": true,
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true,
}

// fileExtension returns the lowercased extension without the dot.
func fileExtension(fileName string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
}

// typeRecognized reports whether the declared MIME type, or failing that the
// file extension, is in the supported set.
func typeRecognized(fileName, mimeType string) bool {
	if _, ok := supportedMimeTypes[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return true
	}
	return supportedExtensions[fileExtension(fileName)]
}

// ValidateFile is the entry gate, run before dispatch. Checks in order:
// recognized type, then plan-tier size ceiling. A failure is permanent for
// this file and does not abort the batch.
func ValidateFile(data []byte, fileName, mimeType, plan string) error {
	if !typeRecognized(fileName, mimeType) {
		return &ValidationError{
			Reason: "unsupported file type. Supported formats: PDF, DOC, DOCX, TXT, MD, JSON, CSV, PNG, JPG, GIF, WEBP",
		}
	}

	maxSize := models.MaxFileSize(plan)
	if int64(len(data)) > maxSize {
		return &ValidationError{
			Reason: fmt.Sprintf("file size exceeds %dMB limit for %s plan", maxSize>>20, plan),
		}
	}

	return nil
}
