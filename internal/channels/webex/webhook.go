package webex

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
)

const (
	SignatureHeader = "X-Spark-Signature"

	defaultWebhookPath = "/"
	defaultWorkers     = 16
	maxBodyBytes       = 1 << 20
)

// EventFunc receives decoded webhook events.
type EventFunc func(ctx context.Context, ev bus.InboundEvent)

// WebhookOptions configures the webhook receiver.
type WebhookOptions struct {
	Path         string
	Secret       string // empty disables signature verification
	Workers      int    // concurrent dispatches
	RateLimitRPM int    // per client IP; 0 disables
}

// Webhook accepts Webex webhook notifications and hands them to an EventFunc
// on background goroutines.
type Webhook struct {
	opts   WebhookOptions
	handle EventFunc
	sem    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebhook creates a receiver. ctx bounds every dispatched event.
func NewWebhook(ctx context.Context, opts WebhookOptions, handle EventFunc) *Webhook {
	if opts.Path == "" {
		opts.Path = defaultWebhookPath
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	wctx, cancel := context.WithCancel(ctx)
	return &Webhook{
		opts:   opts,
		handle: handle,
		sem:    semaphore.NewWeighted(int64(opts.Workers)),
		ctx:    wctx,
		cancel: cancel,
	}
}

// envelope is the notification body Webex posts to the target URL.
type envelope struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Resource string       `json:"resource"`
	Event    string       `json:"event"`
	Data     envelopeData `json:"data"`
}

type envelopeData struct {
	ID          string `json:"id"`
	RoomID      string `json:"roomId"`
	RoomType    string `json:"roomType"`
	PersonID    string `json:"personId"`
	PersonEmail string `json:"personEmail"`
	MessageID   string `json:"messageId"`
	Type        string `json:"type"`
	Created     string `json:"created"`
}

// toEvent converts a notification into an InboundEvent. An unparsable created
// timestamp leaves Created zero so the dispatcher drops the event.
func (e envelope) toEvent() bus.InboundEvent {
	kind := bus.KindMessageCreated
	if e.Data.Type == "submit" || e.Resource == "attachmentActions" {
		kind = bus.KindAttachmentSubmitted
	}
	ev := bus.InboundEvent{
		Kind:        kind,
		ID:          e.Data.ID,
		RoomID:      e.Data.RoomID,
		RoomType:    e.Data.RoomType,
		PersonID:    e.Data.PersonID,
		PersonEmail: e.Data.PersonEmail,
		MessageID:   e.Data.MessageID,
	}
	if e.Data.Created != "" {
		if t, err := time.Parse(time.RFC3339Nano, e.Data.Created); err == nil {
			ev.Created = t
		}
	}
	return ev
}

// Router builds the HTTP handler: the webhook route plus GET /healthz.
func (w *Webhook) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if w.opts.RateLimitRPM > 0 {
		r.Use(httprate.LimitByIP(w.opts.RateLimitRPM, time.Minute))
	}

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = rw.Write([]byte("OK"))
	})
	r.Post(w.opts.Path, w.ServeHTTP)
	return r
}

// ServeHTTP handles one notification: verify, decode, acknowledge, then dispatch.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		http.Error(rw, "read body failed", http.StatusBadRequest)
		return
	}

	if w.opts.Secret != "" && !VerifySignature(w.opts.Secret, body, req.Header.Get(SignatureHeader)) {
		slog.Warn("webex webhook: signature mismatch", "remote", req.RemoteAddr)
		http.Error(rw, "invalid signature", http.StatusUnauthorized)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		slog.Debug("webex webhook: invalid payload", "error", err)
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}

	ev := env.toEvent()
	slog.Debug("webex webhook received", "resource", env.Resource, "event", env.Event, "kind", ev.Kind, "id", ev.ID,
		"request_id", middleware.GetReqID(req.Context()))

	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("OK"))

	w.dispatch(ev)
}

func (w *Webhook) dispatch(ev bus.InboundEvent) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.sem.Acquire(w.ctx, 1); err != nil {
			slog.Warn("webex webhook: event dropped during shutdown", "id", ev.ID)
			return
		}
		defer w.sem.Release(1)
		w.handle(w.ctx, ev)
	}()
}

// Wait blocks until every dispatched event has finished.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

// Close cancels pending dispatches and waits for running ones.
func (w *Webhook) Close() {
	w.cancel()
	w.wg.Wait()
}

// VerifySignature checks the hex HMAC-SHA1 of body against signature.
func VerifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign returns the hex HMAC-SHA1 signature Webex attaches to a notification body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
