package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"bazaar/internal/app/policies"
	"bazaar/internal/domain/shared/errs"
	"bazaar/internal/domain/shared/money"
)

var ErrListingNotFound = errs.New(errs.NotFound, "memory: listing not found")

// Catalog is an in-memory listing catalogue used in memory mode and tests.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]policies.ListingInfo
}

func NewCatalog(listings ...policies.ListingInfo) *Catalog {
	c := &Catalog{items: make(map[string]policies.ListingInfo)}
	for _, l := range listings {
		c.Put(l)
	}
	return c
}

func (c *Catalog) Put(l policies.ListingInfo) {
	if l.Status == "" {
		l.Status = policies.ListingAvailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[l.ID] = l
}

func (c *Catalog) Listing(ctx context.Context, id string) (policies.ListingInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.items[id]
	if !ok {
		return policies.ListingInfo{}, fmt.Errorf("%w: %s", ErrListingNotFound, id)
	}
	return l, nil
}

func (c *Catalog) NotifyReserved(ctx context.Context, listingID, buyerID string) error {
	return c.setStatus(listingID, policies.ListingReserved)
}

// NotifyAvailable releases a reservation. Sold listings stay sold.
func (c *Catalog) NotifyAvailable(ctx context.Context, listingID string) error {
	return c.setStatus(listingID, policies.ListingAvailable)
}

func (c *Catalog) setStatus(listingID string, status policies.ListingStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.items[listingID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrListingNotFound, listingID)
	}
	if l.Status == policies.ListingSold {
		return nil
	}
	l.Status = status
	c.items[listingID] = l
	return nil
}

type listingFixture struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	SellerID   string `json:"seller_id"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

// LoadFixtures imports listings from a JSON array file. A missing file is not an error.
func (c *Catalog) LoadFixtures(path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("listing fixtures file empty", "path", path)
		return nil
	}
	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	for _, fx := range fixtures {
		price, err := money.New(fx.PriceCents, fx.Currency)
		if err != nil || fx.ID == "" || fx.SellerID == "" {
			logger.Error("fixture invalid", "listing_id", fx.ID, "error", err)
			continue
		}
		c.Put(policies.ListingInfo{
			ID:       fx.ID,
			Title:    strings.TrimSpace(fx.Title),
			Price:    price,
			SellerID: fx.SellerID,
			Status:   policies.ListingStatus(strings.ToUpper(fx.Status)),
		})
		logger.Debug("listing fixture imported", "listing_id", fx.ID)
	}
	return nil
}

var _ policies.ListingPort = (*Catalog)(nil)
