package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"uptimestrip/internal/models"
)

// ErrInvalidSummary is returned when the summary document is not a JSON array.
var ErrInvalidSummary = errors.New("invalid summary document: expected array")

// FetchSummary downloads and decodes the per-service summary document.
func (c *Client) FetchSummary(ctx context.Context, url string) ([]models.ServiceSummary, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch summary: %w", err)
	}
	return ParseSummary(body)
}

// ParseSummary decodes a summary document.
func ParseSummary(body []byte) ([]models.ServiceSummary, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrInvalidSummary
	}
	var summaries []models.ServiceSummary
	if err := json.Unmarshal(trimmed, &summaries); err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	for i := range summaries {
		if summaries[i].DailyMinutesDown == nil {
			summaries[i].DailyMinutesDown = map[string]int{}
		}
	}
	return summaries, nil
}
