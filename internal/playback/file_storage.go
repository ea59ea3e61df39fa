package playback

import (
	"encoding/json"
	"fmt"
	"os"

	"tale-server/internal/models"
)

var _ HistoryStorage = (*FileStorage)(nil)

// FileStorage persists the history as one JSON file with a byte cap,
// mirroring the size-limited key-value stores browsers give clients.
type FileStorage struct {
	path     string
	maxBytes int
}

// NewFileStorage creates a file-backed history storage. maxBytes <= 0
// means no cap.
func NewFileStorage(path string, maxBytes int) *FileStorage {
	return &FileStorage{path: path, maxBytes: maxBytes}
}

func (s *FileStorage) Write(items []models.NarrativeHistoryItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return ErrStorageFull
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}

func (s *FileStorage) Read() ([]models.NarrativeHistoryItem, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []models.NarrativeHistoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode history file: %w", err)
	}
	return items, nil
}
