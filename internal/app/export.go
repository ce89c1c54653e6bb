package app

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sha1n/greplace/internal/domain"
)

// Export writes the result collection to a file. A .csv extension selects
// CSV with one row per match line; anything else gets grep-style text.
func Export(path string, results []*domain.SearchOutcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		err = exportCSV(f, results)
	} else {
		err = exportText(f, results)
	}
	if err != nil {
		return fmt.Errorf("write export file %s: %w", path, err)
	}
	return nil
}

func exportCSV(f *os.File, results []*domain.SearchOutcome) error {
	w := csv.NewWriter(f)
	if err := w.Write([]string{"path", "encoding", "matches", "line", "column", "text"}); err != nil {
		return err
	}
	for _, out := range results {
		if len(out.Matches) == 0 {
			row := []string{out.Path, out.EncodingLabel(), strconv.FormatInt(out.MatchCount, 10), "", "", resultNote(out)}
			if err := w.Write(row); err != nil {
				return err
			}
			continue
		}
		for _, m := range out.Matches {
			row := []string{
				out.Path,
				out.EncodingLabel(),
				strconv.FormatInt(out.MatchCount, 10),
				strconv.FormatInt(m.Line, 10),
				strconv.FormatInt(m.Column, 10),
				out.LineText(m.Line),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func exportText(f *os.File, results []*domain.SearchOutcome) error {
	r := NewRenderer(f, false, false)
	for _, out := range results {
		r.RenderOutcome(out)
	}
	return nil
}

func resultNote(out *domain.SearchOutcome) string {
	switch {
	case out.ReadError:
		return "read error"
	case out.ExceptionMessage != "":
		return out.ExceptionMessage
	default:
		return ""
	}
}
