package otp

import (
	"context"
	"errors"
	"time"

	"pearlgen/internal/shared/logger"
)

// ChannelMailbox is the primary verification channel; ChannelSMS is the
// redundancy fallback.
const (
	ChannelMailbox = "mailbox"
	ChannelSMS     = "sms"
)

// ErrTimeout means neither channel delivered a code before the deadline.
var ErrTimeout = errors.New("no verification code before deadline")

// Channel is one out-of-band source of verification codes.
type Channel interface {
	Name() string
	// Open prepares per-identity polling state, e.g. purchasing a phone
	// number and obtaining its request id. An error here is a channel
	// failure, not "no code yet".
	Open(ctx context.Context, email string) (Session, error)
}

// Session polls one channel for one identity.
type Session interface {
	// Poll checks once. ("", nil) means no code yet; an error means the
	// channel itself failed and will not recover for this attempt.
	Poll(ctx context.Context) (string, error)
	Close() error
}

// Code is a resolved verification code plus the channel that produced it.
type Code struct {
	Value   string
	Channel string
}

// Resolver races the mailbox channel against the SMS channel and returns
// the first code either produces. When both deliver near-simultaneously,
// the mailbox result is authoritative.
type Resolver struct {
	channels []Channel
	interval time.Duration
	deadline time.Duration
	grace    time.Duration
}

// NewResolver builds a resolver over the given channels. The channel named
// ChannelMailbox is treated as primary for the tie-break.
func NewResolver(channels []Channel, interval, deadline time.Duration) *Resolver {
	grace := interval / 10
	if grace > 100*time.Millisecond {
		grace = 100 * time.Millisecond
	}
	if grace <= 0 {
		grace = 10 * time.Millisecond
	}
	return &Resolver{
		channels: channels,
		interval: interval,
		deadline: deadline,
		grace:    grace,
	}
}

type pollResult struct {
	channel string
	code    string
	err     error
}

// Resolve polls every channel concurrently until one yields a code, every
// channel has failed, or the deadline elapses. The losing channel is
// cancelled; no polling happens after Resolve returns.
func (r *Resolver) Resolve(parent context.Context, email string) (Code, error) {
	l := logger.WithComponent("OTP/Resolver")

	ctx, cancel := context.WithTimeout(parent, r.deadline)
	defer cancel()

	results := make(chan pollResult, len(r.channels))
	for _, ch := range r.channels {
		go r.pollLoop(ctx, ch, email, results)
	}

	failed := 0
	for {
		select {
		case <-ctx.Done():
			l.Warn().Str("email", email).Dur("deadline", r.deadline).Msg("Verification code deadline elapsed.")
			return Code{}, ErrTimeout

		case res := <-results:
			if res.err != nil {
				l.Warn().Str("email", email).Str("channel", res.channel).Err(res.err).Msg("Verification channel failed, other channel continues.")
				failed++
				if failed == len(r.channels) {
					return Code{}, ErrTimeout
				}
				continue
			}

			code := Code{Value: res.code, Channel: res.channel}
			if res.channel != ChannelMailbox {
				// Both channels may land a code in the same instant. The
				// mailbox is authoritative, so give it a short claim window
				// before accepting the fallback result.
				code = r.preferMailbox(code, results)
			}
			cancel()
			l.Info().Str("email", email).Str("channel", code.Channel).Msg("Verification code resolved.")
			return code, nil
		}
	}
}

// preferMailbox waits briefly for a mailbox result that raced the winner.
func (r *Resolver) preferMailbox(won Code, results <-chan pollResult) Code {
	timer := time.NewTimer(r.grace)
	defer timer.Stop()

	for {
		select {
		case res := <-results:
			if res.err == nil && res.channel == ChannelMailbox {
				return Code{Value: res.code, Channel: res.channel}
			}
		case <-timer.C:
			return won
		}
	}
}

// pollLoop drives one channel: open per-identity state, then poll on the
// shared interval until a code, a channel failure, or cancellation.
func (r *Resolver) pollLoop(ctx context.Context, ch Channel, email string, results chan<- pollResult) {
	session, err := ch.Open(ctx, email)
	if err != nil {
		results <- pollResult{channel: ch.Name(), err: err}
		return
	}
	defer session.Close()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		code, err := session.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			results <- pollResult{channel: ch.Name(), err: err}
			return
		}
		if code != "" {
			results <- pollResult{channel: ch.Name(), code: code}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
