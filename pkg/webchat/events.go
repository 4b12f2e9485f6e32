package webchat

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicExchanges carries one ExchangeEvent per answered chat turn.
const TopicExchanges = "chatwidget.exchanges"

type ExchangeEvent struct {
	ThreadID       string `json:"thread_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	UserMessage    string `json:"user_message"`
	Reply          string `json:"reply"`
	Streamed       bool   `json:"streamed"`
	NewThread      bool   `json:"new_thread"`
	AtMs           int64  `json:"at_ms"`
}

func publishExchange(pub message.Publisher, ev ExchangeEvent) error {
	if pub == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode exchange event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("thread_id", ev.ThreadID)
	if err := pub.Publish(TopicExchanges, msg); err != nil {
		return errors.Wrap(err, "publish exchange event")
	}
	return nil
}

// RunExchangeLog logs every exchange event until ctx is cancelled or the
// subscription closes. handle, when set, sees each decoded event.
func RunExchangeLog(ctx context.Context, sub message.Subscriber, handle func(ExchangeEvent)) error {
	msgs, err := sub.Subscribe(ctx, TopicExchanges)
	if err != nil {
		return errors.Wrap(err, "subscribe to exchanges")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev ExchangeEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warn().Err(err).Str("component", "webchat").Str("message_uuid", msg.UUID).Msg("dropping malformed exchange event")
				msg.Ack()
				continue
			}
			log.Info().
				Str("component", "webchat").
				Str("thread_id", ev.ThreadID).
				Bool("streamed", ev.Streamed).
				Bool("new_thread", ev.NewThread).
				Int("reply_len", len(ev.Reply)).
				Msg("chat exchange")
			if handle != nil {
				handle(ev)
			}
			msg.Ack()
		}
	}
}
