// Package filing reads 10-K section files laid out as <root>/<TICKER>/<section>.txt.
package filing

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"finrag/internal/pkg/pdfextract"
)

// Sections are read in this order.
var Sections = []string{"business", "risk_factors", "mda"}

var ErrNoSections = errors.New("no filing sections found")

type Section struct {
	Name string
	Text string
}

// LoadTicker reads the sections for ticker under root.
func LoadTicker(root, ticker string) ([]Section, error) {
	return LoadDir(filepath.Join(root, strings.ToUpper(strings.TrimSpace(ticker))))
}

// LoadDir reads business, risk_factors and mda from dir. Each section may be a
// .txt file or a .pdf file. Missing or blank sections are skipped.
func LoadDir(dir string) ([]Section, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat filing dir failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var out []Section
	for _, name := range Sections {
		text, err := readSection(dir, name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, Section{Name: name, Text: text})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSections, dir)
	}
	return out, nil
}

// ListTickers returns the ticker directories under root.
func ListTickers(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read filing root failed: %w", err)
	}
	var tickers []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			tickers = append(tickers, strings.ToUpper(e.Name()))
		}
	}
	return tickers, nil
}

func readSection(dir, name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, name+".txt"))
	if err == nil {
		return string(b), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read section %s failed: %w", name, err)
	}

	f, err := os.Open(filepath.Join(dir, name+".pdf"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open section %s failed: %w", name, err)
	}
	defer f.Close()

	text, err := pdfextract.ExtractText(f)
	if err != nil {
		return "", fmt.Errorf("extract section %s failed: %w", name, err)
	}
	return text, nil
}
