package cmd

import (
	"context"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
	"github.com/nextlevelbuilder/teamsbot/internal/channels/webex"
	"github.com/nextlevelbuilder/teamsbot/internal/config"
	"github.com/nextlevelbuilder/teamsbot/internal/correlation"
	"github.com/nextlevelbuilder/teamsbot/internal/dispatch"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins/ping"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins/survey"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins/weather"
)

const fallbackReply = "Sorry, could not understand that"

// newCatalog returns the compiled-in unit kinds manifests can select.
func newCatalog() *plugins.Catalog {
	c := plugins.NewCatalog()
	ping.Register(c)
	weather.Register(c)
	survey.Register(c)
	return c
}

// buildLiterals registers the bot's exact-match replies.
func buildLiterals(s bus.Sender) (*dispatch.Literals, error) {
	return dispatch.NewLiterals().
		Register("あ", replyText(s, "あいうえお")).
		Register(dispatch.Wildcard, replyText(s, fallbackReply)).
		Build()
}

func replyText(s bus.Sender, text string) dispatch.LiteralHandler {
	return func(ctx context.Context, roomID string) error {
		return bus.SendText(ctx, s, roomID, text)
	}
}

func newClient(cfg *config.Config) *webex.Client {
	return webex.NewClient(webex.ClientOptions{
		BaseURL:       cfg.Bot.BaseURL,
		Token:         cfg.Bot.Token,
		Timeout:       cfg.Client.TimeoutDuration(),
		RatePerSecond: cfg.Client.RatePerSecond,
		MaxRetries:    cfg.Client.MaxRetries,
	})
}

func correlationOptions(cfg *config.Config) correlation.Options {
	return correlation.Options{
		Backend:     cfg.Correlation.Backend,
		SQLitePath:  config.ExpandHome(cfg.Correlation.SQLitePath),
		PostgresDSN: cfg.Correlation.PostgresDSN,
		RedisURL:    cfg.Correlation.RedisURL,
	}
}
