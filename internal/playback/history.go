package playback

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tale-server/internal/models"
)

// ErrStorageFull is returned by a HistoryStorage whose backing medium
// cannot fit the write.
var ErrStorageFull = errors.New("history storage is full")

// maxPruneAttempts caps eviction retries so a pathologically small
// storage cannot spin the prune loop forever.
const maxPruneAttempts = 5

// HistoryStorage persists the narrative history as one blob. The bounded
// store treats it as opaque: only ErrStorageFull triggers eviction.
type HistoryStorage interface {
	Write(items []models.NarrativeHistoryItem) error
	Read() ([]models.NarrativeHistoryItem, error)
}

// History is the bounded narrative history kept on the client. Appends
// persist immediately; when the storage is full the oldest item is
// dropped and the write retried, up to maxPruneAttempts times.
type History struct {
	items   []models.NarrativeHistoryItem
	storage HistoryStorage
	logger  zerolog.Logger
}

// NewHistory creates an empty history over the given storage.
func NewHistory(storage HistoryStorage, logger zerolog.Logger) *History {
	return &History{
		storage: storage,
		logger:  logger.With().Str("component", "History").Logger(),
	}
}

// Load replaces the in-memory history with the persisted one.
func (h *History) Load() error {
	items, err := h.storage.Read()
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	h.items = items
	return nil
}

// Append adds the next beat and persists. On ErrStorageFull the oldest
// entry is evicted and the write retried with a capped attempt count;
// the freshly appended beat is never the one evicted.
func (h *History) Append(item models.NarrativeHistoryItem) error {
	h.items = append(h.items, item)

	for attempt := 0; ; attempt++ {
		err := h.storage.Write(h.items)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStorageFull) {
			return fmt.Errorf("failed to persist history: %w", err)
		}
		if attempt >= maxPruneAttempts || len(h.items) <= 1 {
			return fmt.Errorf("history does not fit after %d prune attempts: %w", attempt, err)
		}
		h.logger.Warn().Int("attempt", attempt+1).Int("len", len(h.items)).Msg("History storage full, evicting oldest beat")
		h.items = h.items[1:]
	}
}

// Items returns the current history, oldest first.
func (h *History) Items() []models.NarrativeHistoryItem {
	return h.items
}

// Len returns the number of beats.
func (h *History) Len() int { return len(h.items) }

// Last returns the most recent beat, or false when empty.
func (h *History) Last() (models.NarrativeHistoryItem, bool) {
	if len(h.items) == 0 {
		return models.NarrativeHistoryItem{}, false
	}
	return h.items[len(h.items)-1], true
}

// SetChoiceOnLast records the choice the player took for the latest
// beat. Only the last item may lack a choice text.
func (h *History) SetChoiceOnLast(choiceText string) error {
	if len(h.items) == 0 {
		return errors.New("history is empty")
	}
	h.items[len(h.items)-1].ChoiceText = choiceText
	return h.storage.Write(h.items)
}

// Clear drops everything, both in memory and in storage.
func (h *History) Clear() error {
	h.items = nil
	return h.storage.Write(nil)
}
