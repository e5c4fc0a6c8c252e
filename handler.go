// ABOUTME: Message handler bridging DingTalk chats to the gateway
// ABOUTME: Streams into an AI card when possible, else one text reply

package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/moltbot/dingtalk-connector/internal/dedupe"
	"github.com/moltbot/dingtalk-connector/internal/dingtalk"
	"github.com/moltbot/dingtalk-connector/internal/gateway"
)

// User-visible strings for degraded paths.
const (
	emptyResponsePlaceholder = "(no response)"
	interruptedFormat        = "\n\n⚠️ Response interrupted: %v"
	errorReplyFormat         = "Sorry, something went wrong while handling that request: %v"
)

// chatStream yields response fragments until io.EOF.
type chatStream interface {
	Recv() (string, error)
	Close() error
}

// chatStreamer opens a streaming chat completion.
type chatStreamer interface {
	StreamChat(ctx context.Context, messages []gateway.Message) (chatStream, error)
}

// streamingCard accepts whole-buffer content updates and exactly one finish.
type streamingCard interface {
	Update(ctx context.Context, content string) error
	Finish(ctx context.Context, content string) error
}

// cardStarter creates streaming cards for inbound messages.
type cardStarter interface {
	StartCard(ctx context.Context, msg dingtalk.Message) (streamingCard, error)
}

// textReplier sends plain text replies over the message's session webhook.
type textReplier interface {
	ReplyText(ctx context.Context, msg dingtalk.Message, text string) error
}

// mediaPrompter builds the image upload guidance, "" meaning skip it.
type mediaPrompter interface {
	BuildSystemPrompt(ctx context.Context) string
}

// handler turns one inbound message into one rendered response. All
// rendering failures are absorbed here: once a response attempt has been
// made the callback is acked regardless, because redelivery would only
// produce a duplicate answer.
type handler struct {
	cfg     Config
	gateway chatStreamer
	cards   cardStarter
	replier textReplier
	media   mediaPrompter
	seen    *dedupe.Cache
	logger  *slog.Logger
}

// HandleMessage bridges one inbound message to the gateway and renders the
// streamed response. A nil return acks the callback as processed.
func (h *handler) HandleMessage(ctx context.Context, msg dingtalk.Message) error {
	if h.seen != nil && msg.MsgID != "" && h.seen.Seen(msg.MsgID) {
		h.logger.Debug("dropping redelivered message", "msg_id", msg.MsgID)
		return nil
	}

	content := strings.TrimSpace(msg.Text)
	if content == "" {
		h.logger.Debug("ignoring message without text", "msg_id", msg.MsgID)
		return nil
	}

	h.logger.Info("received message",
		"msg_id", msg.MsgID,
		"conversation", msg.ConversationID,
		"sender", msg.SenderNick,
		"content", truncate(content, 100),
	)

	card, err := h.cards.StartCard(ctx, msg)
	if err != nil {
		h.logger.Warn("card creation failed, falling back to text reply", "error", err)
		card = nil
	}

	if card != nil {
		h.streamToCard(ctx, card, content)
	} else {
		h.streamToText(ctx, msg, content)
	}
	return nil
}

// streamToCard pushes the accumulated response into the card after every
// fragment. A mid-stream failure is appended to the buffer as a visible
// marker; the card is finished exactly once in every path.
func (h *handler) streamToCard(ctx context.Context, card streamingCard, content string) {
	var accumulated strings.Builder

	err := h.streamFragments(ctx, content, func(fragment string) {
		accumulated.WriteString(fragment)
		if err := card.Update(ctx, accumulated.String()); err != nil {
			h.logger.Warn("card update failed", "error", err)
		}
	})
	if err != nil {
		h.logger.Error("gateway request failed", "error", err)
		fmt.Fprintf(&accumulated, interruptedFormat, err)
		if err := card.Update(ctx, accumulated.String()); err != nil {
			h.logger.Warn("card update failed", "error", err)
		}
	}

	if err := card.Finish(ctx, accumulated.String()); err != nil {
		h.logger.Warn("card finish failed", "error", err)
	}
	h.logger.Info("streaming response complete", "chars", accumulated.Len())
}

// streamToText accumulates the whole response silently and sends a single
// reply at the end.
func (h *handler) streamToText(ctx context.Context, msg dingtalk.Message, content string) {
	var full strings.Builder

	err := h.streamFragments(ctx, content, func(fragment string) {
		full.WriteString(fragment)
	})
	if err != nil {
		h.logger.Error("gateway request failed", "error", err)
		h.reply(ctx, msg, fmt.Sprintf(errorReplyFormat, err))
		return
	}

	text := full.String()
	if text == "" {
		text = emptyResponsePlaceholder
	}
	h.reply(ctx, msg, text)
	h.logger.Info("text reply complete", "chars", full.Len())
}

// streamFragments opens a chat stream for content and invokes onFragment
// for each delta until the stream ends.
func (h *handler) streamFragments(ctx context.Context, content string, onFragment func(string)) error {
	stream, err := h.gateway.StreamChat(ctx, h.buildMessages(ctx, content))
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		onFragment(fragment)
	}
}

// buildMessages assembles the transcript sent to the gateway: media upload
// guidance first, then the configured system prompt, then the user text.
// A guidance prompt that comes back empty is simply left out.
func (h *handler) buildMessages(ctx context.Context, content string) []gateway.Message {
	var messages []gateway.Message
	if h.cfg.EnableMediaUpload && h.media != nil {
		if prompt := h.media.BuildSystemPrompt(ctx); prompt != "" {
			messages = append(messages, gateway.Message{Role: gateway.RoleSystem, Content: prompt})
		}
	}
	if h.cfg.SystemPrompt != "" {
		messages = append(messages, gateway.Message{Role: gateway.RoleSystem, Content: h.cfg.SystemPrompt})
	}
	return append(messages, gateway.Message{Role: gateway.RoleUser, Content: content})
}

// reply sends text and logs instead of failing; there is no further
// fallback once the webhook itself is broken.
func (h *handler) reply(ctx context.Context, msg dingtalk.Message, text string) {
	if err := h.replier.ReplyText(ctx, msg, text); err != nil {
		h.logger.Error("failed to send reply", "msg_id", msg.MsgID, "error", err)
	}
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
