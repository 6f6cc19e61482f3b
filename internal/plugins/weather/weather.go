// Package weather answers /tenki with a forecast text and an adaptive card.
package weather

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins"
)

const Kind = "weather"

// Options configures the weather unit from its manifest.
type Options struct {
	Endpoint string `json:"endpoint,omitempty"` // forecast URL, may contain "{city}"
	City     string `json:"city,omitempty"`     // city code, default 140010
	Label    string `json:"label,omitempty"`    // city name used in the lookup announcement
	Command  string `json:"command,omitempty"`  // default "/tenki"
}

// Unit provides the weather capabilities.
type Unit struct {
	forecaster Forecaster
	label      string
	command    string
}

// New creates a weather unit backed by forecaster.
func New(forecaster Forecaster, opts Options) *Unit {
	if opts.Label == "" {
		opts.Label = "横浜"
	}
	if opts.Command == "" {
		opts.Command = "/tenki"
	}
	return &Unit{forecaster: forecaster, label: opts.Label, command: opts.Command}
}

// Register adds the weather factory to the catalog.
func Register(c *plugins.Catalog) {
	c.RegisterFactory(Kind, func(o plugins.Options) (plugins.Unit, error) {
		var opts Options
		if err := o.Decode(&opts); err != nil {
			return nil, err
		}
		return New(NewHTTPForecaster(opts.Endpoint, opts.City), opts), nil
	})
}

func (u *Unit) Describe() []plugins.Capability {
	return []plugins.Capability{
		plugins.Informational{Name: "weather", Description: "create weather adaptive cards"},
		plugins.Routable{Command: u.command, Description: "show the weather forecast", Handler: u.handle},
	}
}

func (u *Unit) handle(ctx context.Context, s bus.Sender, roomID string, _ []string) error {
	if err := bus.SendText(ctx, s, roomID, u.label+"の天気をお調べします。"); err != nil {
		return err
	}

	report, err := u.forecaster.Forecast(ctx)
	if err != nil {
		slog.Warn("weather: forecast failed", "error", err)
		if sendErr := bus.SendText(ctx, s, roomID, "天気情報を取得できませんでした。"); sendErr != nil {
			return sendErr
		}
		return fmt.Errorf("weather forecast: %w", err)
	}

	if report.Description != "" {
		if err := bus.SendText(ctx, s, roomID, report.Description); err != nil {
			return err
		}
	}

	_, err = s.Send(ctx, bus.OutboundMessage{
		RoomID:      roomID,
		Text:        "weather",
		Attachments: []bus.Attachment{bus.CardAttachment(Card(report))},
	})
	return err
}

// Card renders a report as an adaptive card.
func Card(r *Report) map[string]any {
	return map[string]any{
		"type":    "AdaptiveCard",
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"version": "1.2",
		"body": []any{
			map[string]any{
				"type":   "TextBlock",
				"text":   r.Title,
				"size":   "Medium",
				"weight": "Bolder",
				"wrap":   true,
			},
			map[string]any{
				"type":    "ColumnSet",
				"columns": []any{dayColumn(r.Today), dayColumn(r.Tomorrow)},
			},
		},
	}
}

func dayColumn(d Day) map[string]any {
	items := []any{
		map[string]any{"type": "TextBlock", "text": d.DateLabel + " " + d.Date, "weight": "Bolder", "wrap": true},
	}
	if d.ImageURL != "" {
		items = append(items, map[string]any{"type": "Image", "url": d.ImageURL, "altText": d.ImageText, "size": "Small"})
	}
	items = append(items,
		map[string]any{"type": "TextBlock", "text": d.Telop, "wrap": true},
		map[string]any{"type": "TextBlock", "text": fmt.Sprintf("%s℃ / %s℃", d.TempMax, d.TempMin), "isSubtle": true},
	)
	return map[string]any{"type": "Column", "width": "stretch", "items": items}
}
