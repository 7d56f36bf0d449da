package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lu-zhengda/termchat/internal/domain"
	"github.com/lu-zhengda/termchat/internal/provider"
	"github.com/lu-zhengda/termchat/internal/store"
	"github.com/rs/zerolog"
)

// DispatchOptions tunes a Dispatcher.
type DispatchOptions struct {
	// MaxLength is the largest accepted message, in bytes.
	MaxLength int
	// ErrorTTL is how long failure notices stay visible.
	ErrorTTL time.Duration
	// RefreshDelay schedules a history refresh of the thread after each
	// confirmed send. Zero or negative disables it.
	RefreshDelay time.Duration
}

// Dispatcher sends messages optimistically: the message is in the Store as
// pending before the request goes out and is then confirmed or marked failed
// in place. Failed messages stay visible and are never retried.
//
// Sends to the same thread may overlap. Each one carries its own local id, so
// confirmations are reconciled independently and list order is the order
// Send was called in.
type Dispatcher struct {
	provider provider.ChatProvider
	store    *store.Store
	sync     *SyncEngine
	opts     DispatchOptions
	log      zerolog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher returns a Dispatcher sending through p. e, when non-nil, is
// used for the refresh scheduled after each confirmed send.
func NewDispatcher(p provider.ChatProvider, s *store.Store, e *SyncEngine, opts DispatchOptions, log zerolog.Logger) *Dispatcher {
	if opts.MaxLength <= 0 {
		opts.MaxLength = 10000
	}
	if opts.ErrorTTL <= 0 {
		opts.ErrorTTL = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		provider: p,
		store:    s,
		sync:     e,
		opts:     opts,
		log:      log,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Validate checks text against the send rules without touching anything.
// Length is counted in bytes of the text as given; emptiness ignores
// surrounding whitespace.
func (d *Dispatcher) Validate(text string) error {
	return ValidateMessage(text, d.opts.MaxLength)
}

// ValidateMessage applies the send rules with a limit of maxLength bytes.
func ValidateMessage(text string, maxLength int) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Err: ErrEmptyMessage}
	}
	if len(text) > maxLength {
		return &ValidationError{Err: ErrMessageTooLong, Length: len(text), Max: maxLength}
	}
	return nil
}

// Send posts text to threadID and returns the message as it ended up in the
// Store. A ValidationError means nothing was stored or sent. Any other error
// means the message is in the Store marked failed.
func (d *Dispatcher) Send(ctx context.Context, threadID, text string) (domain.Message, error) {
	if threadID == "" {
		return domain.Message{}, fmt.Errorf("failed to send: empty thread id")
	}
	if err := d.Validate(text); err != nil {
		if v, ok := err.(*ValidationError); ok && !v.Silent() {
			d.store.Notify(store.Notice{ThreadID: threadID, Text: err.Error(), ExpiresAt: d.now().Add(d.opts.ErrorTTL)})
		}
		return domain.Message{}, err
	}

	now := d.now()
	msg := domain.Message{
		ID:            domain.LocalIDPrefix + uuid.NewString(),
		ThreadID:      threadID,
		SenderID:      d.store.Identity().UserID,
		Text:          text,
		SentAt:        now.UnixMilli(),
		Direction:     domain.DirectionSent,
		DeliveryState: domain.DeliveryPending,
	}
	if err := d.store.AppendMessage(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("failed to queue message: %w", err)
	}
	d.store.TouchThread(ctx, threadID, text, now)

	res, err := d.provider.SendMessage(ctx, provider.SendRequest{ThreadID: threadID, Text: text})
	if err != nil {
		return d.fail(ctx, msg, err)
	}

	patch := store.MessagePatch{SentAt: res.SentAt, DeliveryState: domain.DeliveryConfirmed}
	if !d.store.ReplaceMessageID(ctx, threadID, msg.ID, res.MessageID, patch) {
		d.log.Debug().Str("thread", threadID).Str("message", res.MessageID).Msg("send already reconciled by refresh")
	}
	d.scheduleRefresh(threadID)

	if confirmed, ok := d.store.Message(threadID, res.MessageID); ok {
		return confirmed, nil
	}
	msg.ID = res.MessageID
	msg.DeliveryState = domain.DeliveryConfirmed
	if res.SentAt > 0 {
		msg.SentAt = res.SentAt
	}
	return msg, nil
}

func (d *Dispatcher) fail(ctx context.Context, msg domain.Message, cause error) (domain.Message, error) {
	reason := redactErr(cause)
	d.store.ReplaceMessageID(ctx, msg.ThreadID, msg.ID, msg.ID, store.MessagePatch{
		DeliveryState: domain.DeliveryFailed,
		Error:         reason,
	})
	d.store.Notify(store.Notice{
		ThreadID:  msg.ThreadID,
		MessageID: msg.ID,
		Text:      "Message not sent: " + reason,
		ExpiresAt: d.now().Add(d.opts.ErrorTTL),
	})
	logFailure(d.log, cause).Str("thread", msg.ThreadID).Str("message", msg.ID).Msg("send failed")

	msg.DeliveryState = domain.DeliveryFailed
	msg.Error = reason
	return msg, fmt.Errorf("failed to send message: %w", cause)
}

func (d *Dispatcher) scheduleRefresh(threadID string) {
	if d.opts.RefreshDelay <= 0 || d.sync == nil || d.ctx.Err() != nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		t := time.NewTimer(d.opts.RefreshDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-d.ctx.Done():
			return
		}
		if err := d.sync.RefreshMessages(d.ctx, threadID); err != nil && !IsStale(err) {
			d.log.Debug().Str("error", redactErr(err)).Str("thread", threadID).Msg("post-send refresh failed")
		}
	}()
}

// Wait blocks until scheduled post-send refreshes have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels pending post-send refreshes and waits for them to exit.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
