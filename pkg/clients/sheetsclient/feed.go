package sheetsclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/pkg/core/model"
	"github.com/jakechorley/fairshare/pkg/core/roster"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
	"github.com/jakechorley/fairshare/pkg/feed"
)

// ReadBatch reads the activity feed tab and parses it into a batch for the date
func (c *Client) ReadBatch(ctx context.Context, spreadsheetID, tab string, date time.Time) (schedule.Batch, error) {
	raw, err := c.GetValues(ctx, spreadsheetID, tab)
	if err != nil {
		return schedule.Batch{}, fmt.Errorf("failed to read feed tab %s: %w", tab, err)
	}

	c.logger.Debug("Read feed tab", zap.String("tab", tab), zap.Int("rows", len(raw)))

	return feed.ParseBatch(raw, date)
}

// ReadRoster reads the roster tab (Name, Modifier, Global modifier and one column per skill key)
func (c *Client) ReadRoster(ctx context.Context, spreadsheetID, tab string, catalog *model.Catalog, ids *model.Identities) (*roster.Roster, error) {
	raw, err := c.GetValues(ctx, spreadsheetID, tab)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster tab %s: %w", tab, err)
	}

	r, err := roster.Parse(raw, catalog, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to parse roster tab %s: %w", tab, err)
	}

	c.logger.Debug("Read roster tab", zap.String("tab", tab), zap.Int("workers", r.Len()))

	return r, nil
}
