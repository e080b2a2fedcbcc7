// Package tandem assembles the Talent Tandem client core: the credential
// store, response cache, request pipeline, realtime channel and
// notification router, wired into a single explicit context object that is
// constructed once and handed to every collaborator that needs it.
package tandem

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/talent-tandem/tandem-go/api"
	"github.com/talent-tandem/tandem-go/cache"
	"github.com/talent-tandem/tandem-go/config"
	"github.com/talent-tandem/tandem-go/credential"
	"github.com/talent-tandem/tandem-go/notify"
	"github.com/talent-tandem/tandem-go/realtime"
)

// Core is the client core. The request pipeline and the realtime channel
// share the credential store but never call each other; push traffic flows
// from the channel's identity queues into the router.
type Core struct {
	Credentials *credential.Store
	Cache       *cache.Cache
	API         *api.Client
	Channel     *realtime.Channel
	Router      *notify.Router
}

// New builds the component graph from configuration. Credential state is
// loaded from durable storage, so a restarted process resumes the previous
// session.
func New(ctx context.Context, cfg config.Config) (*Core, error) {
	var storage credential.Storage
	if cfg.Storage.Path != "" {
		fileStorage, err := credential.OpenFileStorage(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("opening credential storage: %w", err)
		}
		storage = fileStorage
	} else {
		storage = credential.NewMemoryStorage()
	}

	renewalWindow := time.Duration(cfg.API.RenewalWindowSeconds) * time.Second
	creds := credential.NewStore(storage, renewalWindow)

	respCache := cache.New()
	client := api.New(cfg.API, cfg.Cache, creds, respCache)

	router := notify.NewRouter()
	channel := realtime.New(cfg.Realtime, creds,
		realtime.WithIdentityHandler(router.Route),
	)

	return &Core{
		Credentials: creds,
		Cache:       respCache,
		API:         client,
		Channel:     channel,
		Router:      router,
	}, nil
}

// ConnectRealtime opens the realtime channel for the stored identity.
func (c *Core) ConnectRealtime(ctx context.Context) error {
	identity, ok := c.Credentials.Identity()
	if !ok {
		return fmt.Errorf("no stored identity: log in before connecting the realtime channel")
	}

	return c.Channel.Connect(ctx, strconv.FormatInt(identity.ID, 10))
}

// Close releases the core's resources. Pending pipeline requests are not
// cancelled; their own contexts govern them.
func (c *Core) Close() {
	c.Channel.Disconnect()
	c.Cache.Close()
}
