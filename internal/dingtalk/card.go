// ABOUTME: AI streaming card client for the card instance APIs
// ABOUTME: Creates cards and pushes whole-buffer content updates to them

package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// aiCardTemplateID is the standard AI card template shipped with the
// DingTalk open platform.
const aiCardTemplateID = "382e4302-551d-4880-a246-4a1a4b77f8a8.schema"

// CardClient creates AI streaming cards and updates their content.
type CardClient struct {
	apiBase   string
	robotCode string
	tokens    tokenProvider
	client    *http.Client
	logger    *slog.Logger
}

// NewCardClient creates a card client. robotCode identifies the bot that
// delivers cards into group conversations; the app key doubles as it.
func NewCardClient(apiBase, robotCode string, tokens tokenProvider, logger *slog.Logger) *CardClient {
	return &CardClient{
		apiBase:   strings.TrimSuffix(apiBase, "/"),
		robotCode: robotCode,
		tokens:    tokens,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
	}
}

type createCardRequest struct {
	CardTemplateID          string             `json:"cardTemplateId"`
	OutTrackID              string             `json:"outTrackId"`
	CardData                cardData           `json:"cardData"`
	OpenSpaceID             string             `json:"openSpaceId"`
	CallbackType            string             `json:"callbackType,omitempty"`
	UserIDType              int                `json:"userIdType,omitempty"`
	IMGroupOpenSpaceModel   *openSpaceModel    `json:"imGroupOpenSpaceModel,omitempty"`
	IMRobotOpenSpaceModel   *openSpaceModel    `json:"imRobotOpenSpaceModel,omitempty"`
	IMGroupOpenDeliverModel *groupDeliverModel `json:"imGroupOpenDeliverModel,omitempty"`
	IMRobotOpenDeliverModel *robotDeliverModel `json:"imRobotOpenDeliverModel,omitempty"`
}

type cardData struct {
	CardParamMap map[string]string `json:"cardParamMap"`
}

type openSpaceModel struct {
	SupportForward bool `json:"supportForward"`
}

type groupDeliverModel struct {
	RobotCode string `json:"robotCode"`
}

type robotDeliverModel struct {
	SpaceType string `json:"spaceType"`
}

type streamCardRequest struct {
	OutTrackID string `json:"outTrackId"`
	GUID       string `json:"guid"`
	Key        string `json:"key"`
	Content    string `json:"content"`
	IsFull     bool   `json:"isFull"`
	IsFinalize bool   `json:"isFinalize"`
	IsError    bool   `json:"isError"`
}

// Card is a delivered AI streaming card identified by its outTrackId.
type Card struct {
	client     *CardClient
	outTrackID string
}

// OutTrackID returns the card's delivery tracking id.
func (c *Card) OutTrackID() string {
	return c.outTrackID
}

// StartCard creates and delivers an empty AI streaming card for msg. Group
// messages get the card in the group space; private messages get it in the
// one-on-one robot space.
func (c *CardClient) StartCard(ctx context.Context, msg Message) (*Card, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining access token: %w", err)
	}

	outTrackID := uuid.NewString()
	req := createCardRequest{
		CardTemplateID: aiCardTemplateID,
		OutTrackID:     outTrackID,
		CardData:       cardData{CardParamMap: map[string]string{"content": ""}},
		CallbackType:   "STREAM",
		UserIDType:     1,
	}
	if msg.IsGroup() {
		req.OpenSpaceID = "dtv1.card//IM_GROUP." + msg.ConversationID
		req.IMGroupOpenSpaceModel = &openSpaceModel{SupportForward: true}
		req.IMGroupOpenDeliverModel = &groupDeliverModel{RobotCode: c.robotCode}
	} else {
		req.OpenSpaceID = "dtv1.card//IM_ROBOT." + msg.SenderStaffID
		req.IMRobotOpenSpaceModel = &openSpaceModel{SupportForward: true}
		req.IMRobotOpenDeliverModel = &robotDeliverModel{SpaceType: "IM_ROBOT"}
	}

	if err := c.do(ctx, http.MethodPost, "/v1.0/card/instances/createAndDeliver", token, req); err != nil {
		return nil, err
	}

	c.logger.Debug("created streaming card", "out_track_id", outTrackID)
	return &Card{client: c, outTrackID: outTrackID}, nil
}

// Update replaces the card's content with the full text so far.
func (c *Card) Update(ctx context.Context, content string) error {
	return c.client.streamContent(ctx, c.outTrackID, content, false)
}

// Finish pushes the final content and ends the card's streaming session.
func (c *Card) Finish(ctx context.Context, content string) error {
	return c.client.streamContent(ctx, c.outTrackID, content, true)
}

func (c *CardClient) streamContent(ctx context.Context, outTrackID, content string, finalize bool) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtaining access token: %w", err)
	}

	req := streamCardRequest{
		OutTrackID: outTrackID,
		GUID:       uuid.NewString(),
		Key:        "content",
		Content:    content,
		IsFull:     true,
		IsFinalize: finalize,
	}
	return c.do(ctx, http.MethodPut, "/v1.0/card/streaming", token, req)
}

func (c *CardClient) do(ctx context.Context, method, path, token string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-acs-dingtalk-access-token", token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("card api %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}
