// ABOUTME: Plain text replies over the per-message session webhook
// ABOUTME: Used when the AI card path is unavailable

package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookReplier sends text replies to the session webhook carried by each
// inbound message. The webhook needs no access token.
type WebhookReplier struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebhookReplier creates a webhook replier.
func NewWebhookReplier(logger *slog.Logger) *WebhookReplier {
	return &WebhookReplier{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type textReplyRequest struct {
	MsgType string      `json:"msgtype"`
	Text    textContent `json:"text"`
	At      *atTarget   `json:"at,omitempty"`
}

type textContent struct {
	Content string `json:"content"`
}

type atTarget struct {
	AtUserIDs []string `json:"atUserIds"`
}

type webhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// ReplyText posts a text reply to msg's session webhook. In group
// conversations the sender is mentioned so the reply is visible to them.
func (r *WebhookReplier) ReplyText(ctx context.Context, msg Message, text string) error {
	if msg.SessionWebhook == "" {
		return fmt.Errorf("message %s has no session webhook", msg.MsgID)
	}

	reply := textReplyRequest{
		MsgType: "text",
		Text:    textContent{Content: text},
	}
	if msg.IsGroup() && msg.SenderStaffID != "" {
		reply.At = &atTarget{AtUserIDs: []string{msg.SenderStaffID}}
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshaling reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.SessionWebhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("session webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	// The webhook reports failures in the body with a 200 status.
	var wr webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err == nil && wr.ErrCode != 0 {
		return fmt.Errorf("session webhook returned errcode %d: %s", wr.ErrCode, wr.ErrMsg)
	}

	r.logger.Debug("sent text reply", "msg_id", msg.MsgID, "chars", len(text))
	return nil
}
