// Package dispatch routes inbound webhook events to literal, command and submission handlers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
	"github.com/nextlevelbuilder/teamsbot/internal/correlation"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins"
)

const (
	DefaultCallTimeout    = 10 * time.Second
	DefaultHandlerTimeout = 30 * time.Second

	tracerName = "github.com/nextlevelbuilder/teamsbot/internal/dispatch"
)

// Outcome is the terminal state of one event.
type Outcome string

const (
	OutcomeInvalid             Outcome = "dropped_invalid"
	OutcomeIdentityUnavailable Outcome = "dropped_identity_unavailable"
	OutcomeSelf                Outcome = "dropped_self"
	OutcomeFetchFailed         Outcome = "dropped_fetch_failed"
	OutcomeEmpty               Outcome = "dropped_empty"
	OutcomeMisconfigured       Outcome = "dropped_misconfigured"
	OutcomeCommand             Outcome = "command"
	OutcomeLiteral             Outcome = "literal"
	OutcomeHandlerFailed       Outcome = "handler_failed"
	OutcomeSubmissionLinked    Outcome = "submission_linked"
	OutcomeSubmissionUnlinked  Outcome = "submission_unlinked"
	OutcomeSubmissionDuplicate Outcome = "submission_duplicate"
)

// TableSource provides the current command table snapshot.
type TableSource interface {
	Table() *plugins.Table
}

// Config configures a Dispatcher.
type Config struct {
	// BotName is the mention token stripped from the start of messages ("@<BotName> ").
	BotName string
	// CallTimeout bounds each collaborator call: identity, message fetch, store access.
	CallTimeout time.Duration
	// HandlerTimeout bounds one handler invocation.
	HandlerTimeout time.Duration
}

// Dispatcher is the per-process event router. It holds no per-event state and is safe
// for concurrent use.
type Dispatcher struct {
	cfg       Config
	messenger bus.Messenger
	sender    bus.Sender
	commands  TableSource
	literals  *Literals
	store     correlation.Store
	tracer    trace.Tracer
}

// New creates a Dispatcher.
func New(cfg Config, messenger bus.Messenger, sender bus.Sender, commands TableSource, literals *Literals, store correlation.Store) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = DefaultHandlerTimeout
	}
	return &Dispatcher{
		cfg:       cfg,
		messenger: messenger,
		sender:    sender,
		commands:  commands,
		literals:  literals,
		store:     store,
		tracer:    otel.Tracer(tracerName),
	}
}

// Handle processes one event to completion. It never panics and never returns an error;
// the returned Outcome describes which path the event took.
func (d *Dispatcher) Handle(ctx context.Context, ev bus.InboundEvent) (outcome Outcome) {
	ctx, span := d.tracer.Start(ctx, "dispatch.event", trace.WithAttributes(
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("event.id", ev.ID),
	))
	log := slog.With("run_id", uuid.NewString()[:8], "event_id", ev.ID, "kind", ev.Kind)

	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked", "panic", r)
			outcome = OutcomeHandlerFailed
		}
		span.SetAttributes(attribute.String("dispatch.outcome", string(outcome)))
		if outcome == OutcomeMisconfigured || outcome == OutcomeHandlerFailed {
			span.SetStatus(codes.Error, string(outcome))
		}
		span.End()
	}()

	// 1. Validate
	if !ev.HasCreated() {
		log.Info("dropping event without created timestamp")
		return OutcomeInvalid
	}

	// 2. Classify
	if ev.Kind == bus.KindAttachmentSubmitted {
		return d.handleSubmission(ctx, log, ev)
	}
	return d.handleMessage(ctx, log, ev)
}

func (d *Dispatcher) handleMessage(ctx context.Context, log *slog.Logger, ev bus.InboundEvent) Outcome {
	// 3a. Self check
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	botID, err := d.messenger.Identity(callCtx)
	cancel()
	if err != nil {
		log.Error("failed to resolve bot identity", "error", err)
		return OutcomeIdentityUnavailable
	}
	if ev.PersonID == botID {
		log.Debug("ignoring own message")
		return OutcomeSelf
	}

	// 3b. Fetch text
	callCtx, cancel = context.WithTimeout(ctx, d.cfg.CallTimeout)
	text, err := d.messenger.MessageText(callCtx, ev.ID)
	cancel()
	if err != nil {
		log.Error("failed to retrieve message", "error", err)
		return OutcomeFetchFailed
	}

	// 3c-d. Normalize
	text = normalizeText(text, d.cfg.BotName)
	if text == "" {
		log.Debug("dropping empty message")
		return OutcomeEmpty
	}

	// 3e. Command
	if strings.HasPrefix(text, "/") {
		return d.runCommand(ctx, log, ev.RoomID, text)
	}

	// 3f. Literal
	return d.runLiteral(ctx, log, ev.RoomID, text)
}

func (d *Dispatcher) runCommand(ctx context.Context, log *slog.Logger, roomID, text string) Outcome {
	cmd, args := splitCommand(text)

	var table *plugins.Table
	if d.commands != nil {
		table = d.commands.Table()
	}
	if table == nil {
		log.Error("command table missing, check registry construction", "command", cmd)
		return OutcomeMisconfigured
	}

	handler, ok := table.Lookup(cmd)
	if !ok {
		handler, ok = table.Default()
		if !ok {
			log.Error("no default command handler registered, check registry construction", "command", cmd)
			return OutcomeMisconfigured
		}
		log.Debug("unknown command, using default", "command", cmd)
	}

	log.Debug("dispatching command", "command", cmd, "args", len(args), "room_id", roomID)
	err := d.invoke(ctx, func(hctx context.Context) error {
		return handler(hctx, d.sender, roomID, args)
	})
	if err != nil {
		log.Warn("command handler failed", "command", cmd, "error", err)
		return OutcomeHandlerFailed
	}
	return OutcomeCommand
}

func (d *Dispatcher) runLiteral(ctx context.Context, log *slog.Logger, roomID, text string) Outcome {
	handler, ok := d.literals.Lookup(text)
	if !ok {
		handler, ok = d.literals.Lookup(Wildcard)
		if !ok {
			log.Error("no wildcard literal handler registered, check bot construction")
			return OutcomeMisconfigured
		}
	}

	err := d.invoke(ctx, func(hctx context.Context) error {
		return handler(hctx, roomID)
	})
	if err != nil {
		log.Warn("literal handler failed", "error", err)
		return OutcomeHandlerFailed
	}
	return OutcomeLiteral
}

func (d *Dispatcher) handleSubmission(ctx context.Context, log *slog.Logger, ev bus.InboundEvent) Outcome {
	// 4a. Fetch detail
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	detail, err := d.messenger.AttachmentDetail(callCtx, ev.ID)
	cancel()
	if err != nil || detail == nil {
		log.Error("failed to retrieve submission", "error", err)
		return OutcomeFetchFailed
	}

	// 4b. Extract correlation key and submitter
	messageID := firstNonEmpty(detail.MessageID, ev.MessageID)
	submitter := firstNonEmpty(detail.PersonID, ev.PersonID)
	log = log.With("message_id", messageID, "submitter", submitter)

	sub := bus.Submission{Detail: *detail, RoomID: firstNonEmpty(detail.RoomID, ev.RoomID)}

	if submitter == "" {
		log.Warn("submission has no submitter, treating as unlinked")
		d.runSubmitters(ctx, log, sub)
		return OutcomeSubmissionUnlinked
	}

	// 4c. Correlation lookup
	rec, err := d.lookupRecord(ctx, messageID)
	if err != nil {
		if errors.Is(err, correlation.ErrNotFound) {
			log.Info("no correlation data for submission")
		} else {
			log.Warn("correlation store unavailable, treating submission as unlinked", "error", err)
		}
		d.runSubmitters(ctx, log, sub)
		return OutcomeSubmissionUnlinked
	}

	// 4d. Idempotency
	callCtx, cancel = context.WithTimeout(ctx, d.cfg.CallTimeout)
	won, err := d.store.SetFieldIfAbsent(callCtx, messageID, correlation.FieldSubmittedBy, submitter)
	cancel()
	if err != nil {
		log.Warn("correlation update failed, treating submission as unlinked", "error", err)
		d.runSubmitters(ctx, log, sub)
		return OutcomeSubmissionUnlinked
	}
	if !won {
		log.Info("duplicate submission ignored")
		return OutcomeSubmissionDuplicate
	}

	// 4e. First submitter
	sub.Linked = true
	sub.Recipient = rec.Field(correlation.FieldRecipient)
	if roomID := rec.Field(correlation.FieldRoomID); roomID != "" {
		sub.RoomID = roomID
	}
	d.runSubmitters(ctx, log, sub)
	return OutcomeSubmissionLinked
}

func (d *Dispatcher) lookupRecord(ctx context.Context, messageID string) (*correlation.Record, error) {
	if messageID == "" || d.store == nil {
		return nil, correlation.ErrNotFound
	}
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()
	return d.store.Get(callCtx, messageID)
}

func (d *Dispatcher) runSubmitters(ctx context.Context, log *slog.Logger, sub bus.Submission) {
	if d.commands == nil {
		return
	}
	table := d.commands.Table()
	if table == nil {
		return
	}
	for _, s := range table.Submitters() {
		handler := s.Handler
		err := d.invoke(ctx, func(hctx context.Context) error {
			return handler(hctx, d.sender, sub)
		})
		if err != nil {
			log.Warn("submission handler failed", "unit", s.Unit, "error", err)
		}
	}
}

// invoke runs a handler under the handler timeout and converts panics to errors.
func (d *Dispatcher) invoke(ctx context.Context, fn func(context.Context) error) (err error) {
	hctx, cancel := context.WithTimeout(ctx, d.cfg.HandlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return fn(hctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
