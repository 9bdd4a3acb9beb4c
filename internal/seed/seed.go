package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardforge/cardforge/pkg/catalog"
)

const pageSize = 100

// Importer saves upstream cards through the same Save path the write API
// uses, so archetype resolution, cache eviction, and event publication all
// happen exactly as they would for an admin-authored card (§4.9.3, §C13).
type Importer struct {
	client *Client
	saver  CardSaver
	logger *slog.Logger
}

// CardSaver is the subset of catalog.Service the importer depends on.
type CardSaver interface {
	Save(ctx context.Context, c catalog.Card, isCreate bool) (catalog.Card, error)
}

// NewImporter returns an Importer.
func NewImporter(client *Client, saver CardSaver, logger *slog.Logger) *Importer {
	return &Importer{client: client, saver: saver, logger: logger}
}

// Run pages through the entire upstream catalog once, saving every card.
// A single card failing to save is logged and skipped; it does not abort
// the import.
func (i *Importer) Run(ctx context.Context) (int, error) {
	imported := 0
	for offset := 0; ; offset += pageSize {
		cards, err := i.client.ListCards(ctx, offset, pageSize)
		if err != nil {
			return imported, fmt.Errorf("fetching upstream page at offset %d: %w", offset, err)
		}
		if len(cards) == 0 {
			break
		}

		for _, uc := range cards {
			c := catalog.Card{
				Name:        uc.Name,
				Type:        uc.Type,
				Description: uc.Description,
				Race:        uc.Race,
				Attribute:   uc.Attribute,
			}
			if uc.Archetype != "" {
				c.Archetype = &catalog.Archetype{Name: uc.Archetype}
			}
			if _, err := i.saver.Save(ctx, c, true); err != nil {
				i.logger.Error("seed: saving card failed", "card", uc.Name, "error", err)
				continue
			}
			imported++
		}

		if len(cards) < pageSize {
			break
		}
	}
	return imported, nil
}

// Run is the "seed" mode entry point (§C13): parse the configured timeout,
// fetch the entire upstream catalog once, and import it.
func Run(ctx context.Context, saver CardSaver, upstreamURL, timeoutStr string, logger *slog.Logger) error {
	if upstreamURL == "" {
		return fmt.Errorf("UPSTREAM_CATALOG_URL is required for seed mode")
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return fmt.Errorf("parsing upstream catalog timeout %q: %w", timeoutStr, err)
	}

	client := NewClient(upstreamURL, timeout)
	importer := NewImporter(client, saver, logger)

	imported, err := importer.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("seed import complete", "imported", imported)
	return nil
}
