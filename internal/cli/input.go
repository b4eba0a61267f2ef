package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/sprite-ai/redline/internal/detect"
	"github.com/sprite-ai/redline/internal/model"
)

// source is a loaded document: its analysis plus the PDF it came from, when
// there is one.
type source struct {
	Analysis *model.Analysis
	PDFPath  string
}

// readInput reads a named file, or stdin for "-". Reading a terminal stdin is
// refused so the command does not hang waiting for input.
func readInput(path string) ([]byte, error) {
	if path != "-" {
		return os.ReadFile(path)
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("no input provided (stdin is a terminal); pass a file or pipe input")
	}
	return io.ReadAll(os.Stdin)
}

// loadSource turns a command argument into an analysis. PDFs go to the
// analysis service; .json files are saved analyses; anything else is plain
// text run through the local detector.
func loadSource(ctx context.Context, path string, skip []string) (*source, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		a, err := analyzePDF(ctx, path)
		if err != nil {
			return nil, err
		}
		return &source{Analysis: a, PDFPath: path}, nil
	}

	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	name := filepath.Base(path)
	if path == "-" {
		name = ""
	}

	if strings.EqualFold(filepath.Ext(path), ".json") || looksLikeJSON(data) {
		var a model.Analysis
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("parsing analysis %s: %w", path, err)
		}
		if dropped := a.Validate(); dropped > 0 {
			warnf("%d redaction(s) outside the document text were dropped", dropped)
		}
		return &source{Analysis: &a}, nil
	}

	if err := detect.ValidatePasses(skip); err != nil {
		return nil, err
	}
	a := detect.Run(string(data), detect.Options{
		DenyList: cfg.DenyList,
		Skip:     skip,
		Filename: name,
	})
	return &source{Analysis: a}, nil
}

func analyzePDF(ctx context.Context, path string) (*model.Analysis, error) {
	if err := validatePDF(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	a, err := newClient().Analyze(ctx, filepath.Base(path), f)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", path, err)
	}
	a.FileSize = info.Size()
	return a, nil
}

func looksLikeJSON(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}

// writeJSON writes v as indented JSON to path, or stdout when path is empty.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
