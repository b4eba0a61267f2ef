package service

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxUpload is the largest file the service accepts.
const DefaultMaxUpload = 16 * 1024 * 1024

var pdfMagic = []byte("%PDF-")

// ValidationError is an upload rejected before any network call.
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// Validate checks an upload against the service's limits. head holds the
// first bytes of the file and may be shorter than the magic number for
// tiny files. A maxBytes of zero or less uses DefaultMaxUpload.
func Validate(name string, size int64, head []byte, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUpload
	}
	base := filepath.Base(name)

	if strings.ToLower(filepath.Ext(base)) != ".pdf" {
		return &ValidationError{File: base, Reason: "only PDF files are supported"}
	}
	if size == 0 {
		return &ValidationError{File: base, Reason: "file is empty"}
	}
	if size > maxBytes {
		return &ValidationError{
			File:   base,
			Reason: fmt.Sprintf("file is %s, larger than the %s limit", humanSize(size), humanSize(maxBytes)),
		}
	}
	if !bytes.HasPrefix(head, pdfMagic) {
		return &ValidationError{File: base, Reason: "file is not a PDF document"}
	}
	return nil
}

// ValidateFile runs Validate against a file on disk.
func ValidateFile(path string, maxBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return &ValidationError{File: filepath.Base(path), Reason: "is a directory"}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return Validate(path, info.Size(), head[:n], maxBytes)
}

func humanSize(n int64) string {
	const mib = 1024 * 1024
	if n >= mib {
		return fmt.Sprintf("%.1f MB", float64(n)/mib)
	}
	if n >= 1024 {
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%d B", n)
}
