package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
	"github.com/nextlevelbuilder/teamsbot/internal/config"
	"github.com/nextlevelbuilder/teamsbot/internal/correlation"
)

func sendCmd() *cobra.Command {
	var (
		room     string
		to       string
		text     string
		markdown string
		cardFile string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message or adaptive card to a room or a person",
		Example: `  teamsbot send --room <roomId> --text "hello"
  teamsbot send --to alice@example.com --card static/cards/survey.json --text "survey"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Bot.Token == "" {
				return fmt.Errorf("bot token not configured")
			}

			msg, err := buildOutbound(room, to, text, markdown, cardFile)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			store, err := correlation.Open(ctx, correlationOptions(cfg))
			if err != nil {
				return fmt.Errorf("open correlation store: %w", err)
			}
			defer store.Close()
			if len(msg.Attachments) > 0 && (cfg.Correlation.Backend == "" || cfg.Correlation.Backend == "memory") {
				fmt.Fprintln(os.Stderr, "warning: memory correlation backend; submissions to this card will not be linked")
			}

			sender := correlation.NewTrackingSender(newClient(cfg), store)
			sent, err := sender.Send(ctx, msg)
			if err != nil {
				return err
			}
			fmt.Printf("sent %s to %s\n", sent.ID, msg.Recipient())
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room id")
	cmd.Flags().StringVar(&to, "to", "", "person id or email address")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	cmd.Flags().StringVar(&markdown, "markdown", "", "message markdown")
	cmd.Flags().StringVar(&cardFile, "card", "", "adaptive card JSON/JSON5 file to attach")
	return cmd
}

// buildOutbound assembles a message from CLI flags. Exactly one of room and to is required.
func buildOutbound(room, to, text, markdown, cardFile string) (bus.OutboundMessage, error) {
	var msg bus.OutboundMessage
	switch {
	case room != "" && to != "":
		return msg, fmt.Errorf("use either --room or --to, not both")
	case room != "":
		msg.RoomID = room
	case strings.Contains(to, "@"):
		msg.ToPersonEmail = to
	case to != "":
		msg.ToPersonID = to
	default:
		return msg, fmt.Errorf("--room or --to is required")
	}
	msg.Text = text
	msg.Markdown = markdown

	if cardFile != "" {
		data, err := os.ReadFile(cardFile)
		if err != nil {
			return msg, fmt.Errorf("read card: %w", err)
		}
		var card map[string]any
		if err := json5.Unmarshal(data, &card); err != nil {
			return msg, fmt.Errorf("parse card %s: %w", cardFile, err)
		}
		msg.Attachments = []bus.Attachment{bus.CardAttachment(card)}
		if msg.Text == "" && msg.Markdown == "" {
			// Clients that cannot render cards show the text instead.
			msg.Text = "adaptive card"
		}
	}
	if msg.Text == "" && msg.Markdown == "" {
		return msg, fmt.Errorf("--text, --markdown or --card is required")
	}
	return msg, nil
}
