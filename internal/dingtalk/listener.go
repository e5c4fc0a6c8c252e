// ABOUTME: Stream-mode callback listener built on the official Go SDK
// ABOUTME: Normalizes chatbot callbacks and maps handler results to acks

package dingtalk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/payload"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/utils"
)

// Handler consumes one normalized inbound message. A nil return acks the
// callback as processed; an error makes the platform treat delivery as
// failed and redeliver later.
type Handler func(ctx context.Context, msg Message) error

// Listener holds the stream-mode websocket connection to DingTalk and
// dispatches chatbot callbacks to a Handler. Connection management,
// reconnects included, belongs to the SDK.
type Listener struct {
	cli    *client.StreamClient
	logger *slog.Logger
}

// NewListener creates a listener subscribed to chatbot message callbacks
// for the given app credential.
func NewListener(clientID, clientSecret string, handler Handler, logger *slog.Logger) *Listener {
	frameHandler := chatbot.NewDefaultChatBotFrameHandler(callbackAdapter(handler, logger))

	cli := client.NewStreamClient(
		client.WithAppCredential(client.NewAppCredentialConfig(clientID, clientSecret)),
		client.WithUserAgent(client.NewDingtalkGoSDKUserAgent()),
		client.WithSubscription(
			utils.SubscriptionTypeKCallback,
			payload.BotMessageCallbackTopic,
			frameHandler.OnEventReceived,
		),
	)

	return &Listener{cli: cli, logger: logger}
}

// Run connects to the stream endpoint and blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.cli.Start(ctx); err != nil {
		return fmt.Errorf("starting stream client: %w", err)
	}
	defer l.cli.Close()

	l.logger.Info("stream client connected, waiting for messages")
	<-ctx.Done()
	l.logger.Info("stream client shutting down")
	return nil
}

// callbackAdapter converts SDK callback payloads into Messages and maps the
// handler result to an ack: nil acks the callback as processed, an error
// tells the platform delivery failed.
func callbackAdapter(handler Handler, logger *slog.Logger) func(ctx context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
	return func(ctx context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
		if err := handler(ctx, messageFromCallback(data)); err != nil {
			logger.Error("message handler failed", "msg_id", data.MsgId, "error", err)
			return nil, err
		}
		return []byte(""), nil
	}
}

// messageFromCallback flattens an SDK callback payload into a Message.
func messageFromCallback(data *chatbot.BotCallbackDataModel) Message {
	return Message{
		MsgID:            data.MsgId,
		Text:             data.Text.Content,
		ConversationID:   data.ConversationId,
		ConversationType: data.ConversationType,
		SenderStaffID:    data.SenderStaffId,
		SenderNick:       data.SenderNick,
		SessionWebhook:   data.SessionWebhook,
	}
}
