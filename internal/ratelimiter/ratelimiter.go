package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	privateChatRate = time.Second
	groupChatRate   = 3 * time.Second
	// documentRate spaces uploads to one chat.
	documentRate = 3 * time.Second
	// globalRate keeps the bot under 30 messages per second overall.
	globalRate = time.Second / 30
	maxRate    = max(privateChatRate, groupChatRate, documentRate)

	queueSize  = 1000
	pruneEvery = 256
)

// Sender delivers chattables to the Telegram Bot API.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type request struct {
	message  tgbotapi.Chattable
	response chan response
}

type response struct {
	message tgbotapi.Message
	err     error
}

// RateLimiter serializes sends and spaces them per chat so the bot stays
// under Telegram's flood limits.
//
// Only the queue goroutine touches lastSent and lastAny.
type RateLimiter struct {
	api      Sender
	queue    chan request
	lastSent map[int64]time.Time
	lastAny  time.Time
	sends    int
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	log      *slog.Logger
}

func New(api Sender, log *slog.Logger) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())

	rl := &RateLimiter{
		api:      api,
		queue:    make(chan request, queueSize),
		lastSent: make(map[int64]time.Time),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}

	go rl.processQueue()

	return rl
}

func (rl *RateLimiter) Send(
	message tgbotapi.Chattable,
) (tgbotapi.Message, error) {
	if err := rl.ctx.Err(); err != nil {
		return tgbotapi.Message{}, err
	}

	req := request{
		message:  message,
		response: make(chan response, 1),
	}

	select {
	case rl.queue <- req:
	case <-rl.ctx.Done():
		return tgbotapi.Message{}, rl.ctx.Err()
	}

	select {
	case resp := <-req.response:
		return resp.message, resp.err
	case <-rl.ctx.Done():
		return tgbotapi.Message{}, rl.ctx.Err()
	}
}

// Request bypasses the queue. It is meant for calls that return no message,
// such as callback answers and chat actions.
func (rl *RateLimiter) Request(
	c tgbotapi.Chattable,
) (*tgbotapi.APIResponse, error) {
	return rl.api.Request(c)
}

func (rl *RateLimiter) Stop() {
	rl.cancel()
}

func (rl *RateLimiter) processQueue() {
	for {
		select {
		case req := <-rl.queue:
			rl.handleRequest(req)
		case <-rl.ctx.Done():
			for {
				select {
				case req := <-rl.queue:
					req.response <- response{err: rl.ctx.Err()}
				default:
					return
				}
			}
		}
	}
}

func (rl *RateLimiter) handleRequest(req request) {
	chatID := getChatID(req.message)

	if delay := rl.delay(req.message, chatID, rl.now()); delay > 0 {
		rl.log.DebugContext(rl.ctx, "Rate limiting message",
			"chatID", chatID,
			"delay", delay,
			"chattableType", fmt.Sprintf("%T", req.message),
			"queueLen", len(rl.queue))

		select {
		case <-time.After(delay):
		case <-rl.ctx.Done():
			req.response <- response{err: rl.ctx.Err()}
			return
		}
	}

	message, err := rl.api.Send(req.message)

	rl.record(chatID, rl.now())

	req.response <- response{
		message: message,
		err:     err,
	}
}

// delay is the wait before message may go out: the larger of the per-chat
// spacing and the global spacing.
func (rl *RateLimiter) delay(message tgbotapi.Chattable, chatID int64, now time.Time) time.Duration {
	d := getDelay(globalRate, rl.lastAny, now)

	if lastSent, ok := rl.lastSent[chatID]; ok {
		d = max(d, getDelay(getRate(message, chatID), lastSent, now))
	}

	return d
}

func (rl *RateLimiter) record(chatID int64, now time.Time) {
	rl.lastSent[chatID] = now
	rl.lastAny = now

	rl.sends++
	if rl.sends%pruneEvery == 0 {
		rl.prune(now)
	}
}

// prune forgets chats whose spacing has fully elapsed.
func (rl *RateLimiter) prune(now time.Time) {
	for chatID, lastSent := range rl.lastSent {
		if now.Sub(lastSent) >= maxRate {
			delete(rl.lastSent, chatID)
		}
	}
}

func getChatID(message tgbotapi.Chattable) int64 {
	switch m := message.(type) {
	case tgbotapi.MessageConfig:
		return m.ChatID
	case tgbotapi.EditMessageTextConfig:
		return m.ChatID
	case tgbotapi.DeleteMessageConfig:
		return m.ChatID
	case tgbotapi.ChatActionConfig:
		return m.ChatID
	case tgbotapi.DocumentConfig:
		return m.ChatID
	default:
		return 0
	}
}

func getDelay(rate time.Duration, lastSent time.Time, now time.Time) time.Duration {
	if lastSent.IsZero() {
		return 0
	}

	return max(rate-now.Sub(lastSent), 0)
}

func getRate(message tgbotapi.Chattable, chatID int64) time.Duration {
	rate := privateChatRate
	if chatID < 0 {
		rate = groupChatRate
	}

	if _, ok := message.(tgbotapi.DocumentConfig); ok {
		rate = max(rate, documentRate)
	}

	return rate
}
