package generator

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vanshika/payrecon/backend/internal/ingest"
)

// WriteDataset writes statement.csv, profiles.json and orders.json under the provided directory.
func WriteDataset(dataset Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := writeStatement(filepath.Join(dir, "statement.csv"), dataset.Rows); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "profiles.json"), dataset.Profiles); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "orders.json"), dataset.Orders); err != nil {
		return err
	}
	return nil
}

func writeStatement(path string, rows []ingest.Row) error {
	return writeFile(path, func(w io.Writer) error {
		return ingest.WriteCSV(w, rows, StatementHeaders)
	})
}

func writeJSON(path string, data any) error {
	return writeFile(path, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	})
}

// writeFile reports the close error too; a short write to disk must fail the run.
func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := write(file); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
