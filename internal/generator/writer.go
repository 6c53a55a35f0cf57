package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

// DatasetFile is the file name WriteDataset produces.
const DatasetFile = "transactions.json"

// WriteDataset serializes the transactions into transactions.json under dir
// and returns the written path.
func WriteDataset(txs []domain.Transaction, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, DatasetFile)
	if err := writeJSON(path, txs); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, data any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode json for %s: %w", path, err)
	}
	return nil
}
