package app

import (
	"context"
	"fmt"

	"github.com/infogenie/backend/internal/app/services/chat"
	"github.com/infogenie/backend/internal/app/services/credits"
	"github.com/infogenie/backend/internal/app/services/engagement"
	"github.com/infogenie/backend/internal/app/services/hotlist"
	"github.com/infogenie/backend/internal/app/storage"
	"github.com/infogenie/backend/internal/app/storage/memory"
	"github.com/infogenie/backend/internal/app/system"
	"github.com/infogenie/backend/internal/config"
	"github.com/infogenie/backend/pkg/logger"
)

// Stores groups the persistence backends the application runs on.
type Stores struct {
	Users storage.UserStore
}

// Application wires the service graph and owns background lifecycles.
type Application struct {
	Credits    *credits.Service
	Chat       *chat.Dispatcher
	Engagement *engagement.Service
	Hotlist    *hotlist.Service
	Users      storage.UserStore

	cfg     config.Config
	manager *system.Manager
	log     *logger.Logger
}

// New assembles the application. Missing stores default to in-memory
// implementations so tests and local runs need no database.
func New(cfg config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if stores.Users == nil {
		stores.Users = memory.New()
	}

	providers, err := config.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	feeds, err := config.LoadFeeds(cfg.FeedsFile)
	if err != nil {
		return nil, fmt.Errorf("load feeds: %w", err)
	}

	dispatcher, err := chat.NewDispatcher(providers, log.With("component", "chat"))
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	cache := hotlist.NewCache()

	application := &Application{
		Credits:    credits.New(stores.Users, log.With("component", "credits")),
		Chat:       dispatcher,
		Engagement: engagement.New(stores.Users, engagement.Rewards{Coins: cfg.Engagement.CoinReward, Experience: cfg.Engagement.ExpReward}, log.With("component", "engagement")),
		Hotlist:    hotlist.New(feeds, cache, nil, log.With("component", "hotlist")),
		Users:      stores.Users,
		cfg:        cfg,
		manager:    system.NewManager(),
		log:        log,
	}

	sweeper := hotlist.NewSweeper(cache, cfg.Cache.SweepSchedule, cfg.Cache.SweepAfterTTLs, log.With("component", "sweeper"))
	if err := application.manager.Register(sweeper); err != nil {
		return nil, err
	}

	return application, nil
}

// Config exposes the runtime configuration to the transport layer.
func (a *Application) Config() config.Config { return a.cfg }

// Start launches background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop shuts background services down in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
