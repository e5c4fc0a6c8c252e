// ABOUTME: Connector facade wiring DingTalk stream callbacks to the gateway
// ABOUTME: Owns configuration resolution, collaborator setup, and lifecycle

package connector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/moltbot/dingtalk-connector/internal/dedupe"
	"github.com/moltbot/dingtalk-connector/internal/dingtalk"
	"github.com/moltbot/dingtalk-connector/internal/gateway"
)

// Redelivery window for the seen-message cache.
const (
	dedupeTTL     = 5 * time.Minute
	dedupeMaxSize = 1000
)

// Connector bridges a DingTalk chatbot to a Moltbot gateway.
type Connector struct {
	cfg      Config
	logger   *slog.Logger
	listener *dingtalk.Listener
	seen     *dedupe.Cache

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a connector. Fields left nil in o resolve from environment
// variables, then defaults. A nil logger falls back to slog.Default().
func New(o Overrides, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := ResolveConfig(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens := dingtalk.NewTokenSource(dingtalk.DefaultOAPIBase,
		cfg.ClientID, cfg.ClientSecret, dingtalk.NewTokenCache(), logger)
	cards := dingtalk.NewCardClient(dingtalk.DefaultAPIBase, cfg.ClientID, tokens, logger)
	replier := dingtalk.NewWebhookReplier(logger)
	media := dingtalk.NewMediaHelper(dingtalk.DefaultOAPIBase, tokens, logger)
	chat := gateway.NewClient(cfg.GatewayURL, cfg.Model, cfg.GatewayToken, cfg.Timeout)
	seen := dedupe.New(dedupeTTL, dedupeMaxSize)

	h := &handler{
		cfg:     cfg,
		gateway: gatewayStreamer{client: chat},
		cards:   cardClientStarter{client: cards},
		replier: replier,
		media:   media,
		seen:    seen,
		logger:  logger,
	}

	return &Connector{
		cfg:      cfg,
		logger:   logger,
		listener: dingtalk.NewListener(cfg.ClientID, cfg.ClientSecret, h.HandleMessage, logger),
		seen:     seen,
	}, nil
}

// FromEnv creates a connector configured purely from environment variables.
func FromEnv(logger *slog.Logger) (*Connector, error) {
	return New(Overrides{}, logger)
}

// Config returns the resolved configuration.
func (c *Connector) Config() Config {
	return c.cfg
}

// Run connects to DingTalk and blocks until ctx is cancelled, Stop is
// called, or the stream connection fails to start.
func (c *Connector) Run(ctx context.Context) error {
	c.logger.Info("starting connector",
		"gateway", c.cfg.GatewayURL,
		"model", c.cfg.Model,
		"media_upload", c.cfg.EnableMediaUpload,
	)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()
	defer c.seen.Close()

	return c.listener.Run(ctx)
}

// Stop cancels a running Run. Safe to call at any time, more than once.
func (c *Connector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// gatewayStreamer adapts the concrete gateway client to the handler's
// streaming seam.
type gatewayStreamer struct {
	client *gateway.Client
}

func (g gatewayStreamer) StreamChat(ctx context.Context, messages []gateway.Message) (chatStream, error) {
	stream, err := g.client.StreamChat(ctx, messages)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// cardClientStarter adapts the card client to the handler's card seam.
type cardClientStarter struct {
	client *dingtalk.CardClient
}

func (c cardClientStarter) StartCard(ctx context.Context, msg dingtalk.Message) (streamingCard, error) {
	card, err := c.client.StartCard(ctx, msg)
	if err != nil {
		return nil, err
	}
	return card, nil
}
