package telegram

import (
	"context"
	"fmt"
	"log"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"github.com/stellarlinkco/readsync/internal/bus"
	"github.com/stellarlinkco/readsync/internal/config"
)

const eventBufSize = 128

// Client wraps the gotd MTProto client: it turns raw updates into bus
// events and exposes the outbound transport the marker needs.
type Client struct {
	client *telegram.Client
	api    *tg.Client
	events chan bus.Event
	phone  string
}

func New(cfg *config.Config) *Client {
	c := &Client{
		events: make(chan bus.Event, eventBufSize),
		phone:  cfg.PhoneNumber,
	}

	dispatcher := tg.NewUpdateDispatcher()
	c.registerHandlers(dispatcher)

	c.client = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
		UpdateHandler:  dispatcher,
	})
	c.api = c.client.API()
	return c
}

// Events is the inbound stream consumed by the gateway loop.
func (c *Client) Events() <-chan bus.Event {
	return c.events
}

// Transport returns the outbound mark-read surface.
func (c *Client) Transport() *Transport {
	return &Transport{api: c.api}
}

// Run connects and keeps the connection alive while f runs. When f
// returns, the connection is shut down gracefully.
func (c *Client) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return c.client.Run(ctx, f)
}

// Authorize runs the interactive sign-in flow if the session is not yet
// authorized. Must be called inside Run.
func (c *Client) Authorize(ctx context.Context) error {
	flow := auth.NewFlow(termAuth{phone: c.phone}, auth.SendCodeOptions{})
	if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	self, err := c.client.Self(ctx)
	if err != nil {
		return fmt.Errorf("fetch self: %w", err)
	}
	log.Printf("[telegram] signed in as %s", userName(self))
	return nil
}
