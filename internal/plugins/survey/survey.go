// Package survey sends a choice card and acknowledges its submissions.
package survey

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins"
)

const (
	Kind = "survey"

	// pluginInput tags submissions produced by this unit's cards.
	pluginInput = "plugin"
	choiceInput = "choice"
)

// Options configures the survey unit from its manifest.
type Options struct {
	Question string         `json:"question,omitempty"`
	Choices  []string       `json:"choices,omitempty"`
	Card     map[string]any `json:"card,omitempty"` // custom card body; must submit {"plugin": "survey"}
}

// Unit provides /survey and handles its card submissions.
type Unit struct {
	opts Options
}

// New creates the unit.
func New(opts Options) *Unit {
	if opts.Question == "" {
		opts.Question = "How is the bot doing?"
	}
	if len(opts.Choices) == 0 {
		opts.Choices = []string{"Great", "OK", "Needs work"}
	}
	return &Unit{opts: opts}
}

// Register adds the survey factory to the catalog.
func Register(c *plugins.Catalog) {
	c.RegisterFactory(Kind, func(o plugins.Options) (plugins.Unit, error) {
		var opts Options
		if err := o.Decode(&opts); err != nil {
			return nil, err
		}
		return New(opts), nil
	})
}

func (u *Unit) Describe() []plugins.Capability {
	return []plugins.Capability{
		plugins.Routable{Command: "/survey", Description: "send a one-question survey card", Handler: u.send},
	}
}

func (u *Unit) send(ctx context.Context, s bus.Sender, roomID string, _ []string) error {
	_, err := s.Send(ctx, bus.OutboundMessage{
		RoomID:      roomID,
		Text:        u.opts.Question,
		Attachments: []bus.Attachment{bus.CardAttachment(u.card())},
	})
	return err
}

func (u *Unit) card() map[string]any {
	if u.opts.Card != nil {
		return u.opts.Card
	}
	choices := make([]any, 0, len(u.opts.Choices))
	for _, c := range u.opts.Choices {
		choices = append(choices, map[string]any{"title": c, "value": c})
	}
	return map[string]any{
		"type":    "AdaptiveCard",
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"version": "1.2",
		"body": []any{
			map[string]any{"type": "TextBlock", "text": u.opts.Question, "wrap": true, "weight": "Bolder"},
			map[string]any{"type": "Input.ChoiceSet", "id": choiceInput, "style": "expanded", "choices": choices},
		},
		"actions": []any{
			map[string]any{"type": "Action.Submit", "title": "Submit", "data": map[string]any{pluginInput: Kind}},
		},
	}
}

// HandleSubmission acknowledges answers to this unit's cards and ignores everything else.
func (u *Unit) HandleSubmission(ctx context.Context, s bus.Sender, sub bus.Submission) error {
	if tag, _ := sub.Detail.Inputs[pluginInput].(string); tag != Kind {
		return nil
	}
	if sub.RoomID == "" {
		return fmt.Errorf("survey submission %s has no room", sub.Detail.ID)
	}

	choice, _ := sub.Detail.Inputs[choiceInput].(string)
	choice = strings.TrimSpace(choice)
	if choice == "" {
		choice = "(no answer)"
	}

	var text string
	if sub.Linked {
		text = fmt.Sprintf("Thanks! Recorded answer: %s", choice)
	} else {
		text = fmt.Sprintf("Thanks! Answer received: %s (this survey is no longer tracked)", choice)
	}
	return bus.SendText(ctx, s, sub.RoomID, text)
}
