// Package calendar fetches busy intervals from a Google Calendar freeBusy
// endpoint. Access is read-only: the client can ask when the owner is busy
// and nothing else. When no calendar is configured the advisory engine simply
// runs without free-block context.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-task-assistant/internal/availability"
)

// Client queries one calendar's freeBusy data over HTTP.
type Client struct {
	URL        string // full freeBusy query URL
	Token      string // bearer token, already obtained out of band
	CalendarID string // defaults to "primary"
	HTTP       *http.Client
}

// NewClient constructs a freeBusy client with a bounded-timeout HTTP client.
func NewClient(url, token string, timeout time.Duration) *Client {
	return &Client{
		URL:        url,
		Token:      token,
		CalendarID: "primary",
		HTTP:       &http.Client{Timeout: timeout},
	}
}

type freeBusyRequest struct {
	TimeMin string           `json:"timeMin"`
	TimeMax string           `json:"timeMax"`
	Items   []freeBusyItemID `json:"items"`
}

type freeBusyItemID struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"busy"`
	} `json:"calendars"`
}

// BusyBlocks returns the calendar's busy intervals between min and max.
func (c *Client) BusyBlocks(ctx context.Context, min, max time.Time) ([]availability.Block, error) {
	tr := otel.Tracer("calendar/Client")
	ctx, span := tr.Start(ctx, "BusyBlocks",
		trace.WithAttributes(attribute.String("calendar_id", c.calendarID())),
	)
	defer span.End()

	body, err := json.Marshal(freeBusyRequest{
		TimeMin: min.UTC().Format(time.RFC3339),
		TimeMax: max.UTC().Format(time.RFC3339),
		Items:   []freeBusyItemID{{ID: c.calendarID()}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("freebusy query returned status %d", resp.StatusCode)
	}

	var out freeBusyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	cal, ok := out.Calendars[c.calendarID()]
	if !ok {
		return nil, nil
	}
	blocks := make([]availability.Block, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		blocks = append(blocks, availability.Block{Start: b.Start.UTC(), End: b.End.UTC()})
	}
	return blocks, nil
}

func (c *Client) calendarID() string {
	if c.CalendarID == "" {
		return "primary"
	}
	return c.CalendarID
}
