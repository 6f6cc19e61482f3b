// Package ping provides liveness commands.
package ping

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins"
)

const Kind = "ping"

// Options configures the ping unit.
type Options struct {
	Reply string `json:"reply,omitempty"` // default "pong"
}

// Unit answers /ping and /echo.
type Unit struct {
	reply string
}

// New creates the unit.
func New(opts Options) *Unit {
	if opts.Reply == "" {
		opts.Reply = "pong"
	}
	return &Unit{reply: opts.Reply}
}

// Register adds the ping factory to the catalog.
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
		plugins.Routable{Command: "/ping", Description: "check that the bot is alive", Handler: u.ping},
		plugins.Routable{Command: "/echo", Description: "repeat the given text", Handler: u.echo},
	}
}

func (u *Unit) ping(ctx context.Context, s bus.Sender, roomID string, _ []string) error {
	return bus.SendText(ctx, s, roomID, u.reply)
}

func (u *Unit) echo(ctx context.Context, s bus.Sender, roomID string, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		text = "(nothing to echo)"
	}
	return bus.SendText(ctx, s, roomID, text)
}
