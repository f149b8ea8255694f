package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/irb-determination-server/internal/domain"
)

// readSnapshot loads an answer file. "-" reads JSON from stdin; files ending
// in .yaml or .yml are decoded as YAML, everything else as JSON.
func readSnapshot(path string, stdin io.Reader) (*domain.AnswerSnapshot, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read answers: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return domain.SnapshotFromYAML(data)
	default:
		snapshot, err := domain.SnapshotFromJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse answers json: %w", err)
		}
		return snapshot, nil
	}
}
