package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrInvalidManifest is returned for a manifest without any id.
var ErrInvalidManifest = errors.New("input must be a valid GDC manifest; for a valid manifest visit https://portal.gdc.cancer.gov/")

// IDsFromManifest returns the non-empty values of the id column of a tab
// separated GDC manifest.
func IDsFromManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return parseManifest(f)
}

func parseManifest(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrInvalidManifest
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "id" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrInvalidManifest
	}

	var ids []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		if col < len(row) {
			if id := strings.TrimSpace(row[col]); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, ErrInvalidManifest
	}
	return ids, nil
}
