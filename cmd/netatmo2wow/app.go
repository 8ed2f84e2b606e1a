package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flappah/netatmo2wow/pkg/config"
	"github.com/flappah/netatmo2wow/pkg/database"
	"github.com/flappah/netatmo2wow/pkg/metrics"
	"github.com/flappah/netatmo2wow/pkg/puller"
	"github.com/flappah/netatmo2wow/pkg/puller/netatmo"
	"github.com/flappah/netatmo2wow/pkg/pusher"
	"github.com/flappah/netatmo2wow/pkg/pusher/wow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// trackerCacheSize bounds the in-memory publish progress
const trackerCacheSize = 256

var errNoTokens = errors.New("no netatmo tokens: run 'netatmo2wow auth login' or 'netatmo2wow auth url' first")

// App carries the loaded configuration and shared collaborators
type App struct {
	Config *config.Config
	Logger *logrus.Logger
}

type appKey struct{}

func withApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

func appFrom(ctx context.Context) *App {
	app, _ := ctx.Value(appKey{}).(*App)
	return app
}

// openDatabase connects and migrates when the archive is enabled. A nil
// manager means the bridge runs without persistence.
func (a *App) openDatabase(ctx context.Context) (*database.DatabaseManager, error) {
	if !a.Config.Database.Enabled {
		return nil, nil
	}

	dm, err := database.NewDatabaseManager(ctx, a.Config.Database.DSN(), a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := dm.Init(ctx); err != nil {
		dm.Close()
		return nil, err
	}
	return dm, nil
}

// newClient builds the netatmo client without tokens
func (a *App) newClient() *netatmo.Client {
	n := a.Config.Netatmo
	return netatmo.NewClient(n.ClientID, n.ClientSecret, n.RedirectURI,
		netatmo.WithBaseURL(n.BaseURL),
		netatmo.WithRateLimit(n.RateLimit, n.RateBurst),
		netatmo.WithLogger(a.Logger),
	)
}

// authorizedClient is restoreClient that insists on tokens
func (a *App) authorizedClient(ctx context.Context, dm *database.DatabaseManager) (*netatmo.Client, error) {
	client, ok, err := a.restoreClient(ctx, dm)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoTokens
	}
	return client, nil
}

// restoreClient restores tokens from the database or the config and
// falls back to a password login when credentials are configured. The
// boolean reports whether the client holds tokens.
func (a *App) restoreClient(ctx context.Context, dm *database.DatabaseManager) (*netatmo.Client, bool, error) {
	client := a.newClient()
	n := a.Config.Netatmo

	haveTokens := false
	if dm != nil {
		store := database.NewTokenStore(dm, n.ClientID)
		client.SetTokenRefreshCallback(store.SaveTokens)
		client.SetTokenInvalidCallback(store.Invalidate)

		stored, found, err := store.Load(ctx)
		if err != nil {
			return nil, false, err
		}
		if found {
			client.SetState(stored.State)
		}
		if found && stored.RefreshToken != "" {
			client.SetTokens(stored.AccessToken, stored.RefreshToken, stored.ExpiresAt)
			haveTokens = true
		}
	}

	if !haveTokens && n.RefreshToken != "" {
		client.SetTokens(n.AccessToken, n.RefreshToken, n.Expiry())
		haveTokens = true
	}

	if haveTokens {
		a.Logger.WithField("access_token_valid", client.IsTokenValid()).Debug("Restored netatmo tokens")
	}

	if !haveTokens && n.Username != "" && n.Password != "" {
		if err := client.Login(ctx, n.Username, n.Password); err != nil {
			return nil, false, fmt.Errorf("netatmo login failed: %w", err)
		}
		haveTokens = true
		if _, err := a.persistTokens(dm, client); err != nil {
			a.Logger.WithError(err).Warn("Failed to persist netatmo tokens")
		}
	}

	return client, haveTokens, nil
}

// buildService wires the puller, publishers, progress tracker and archive.
// dryRun leaves out publishing and archiving.
func (a *App) buildService(client *netatmo.Client, dm *database.DatabaseManager, reg prometheus.Registerer, dryRun bool) (*puller.Service, error) {
	opts, err := a.Config.Reconcile.Options()
	if err != nil {
		return nil, err
	}

	pullers := puller.NewPullerRegistry()
	pullers.Register(netatmo.NewPuller(client, a.Config.Netatmo.DeviceID, a.Logger))

	pushers := pusher.NewRegistry()
	if !dryRun && a.Config.WOW.Enabled() {
		w := a.Config.WOW
		pushers.Register(wow.NewPusher(w.SiteID, w.AuthenticationKey,
			wow.WithBaseURL(w.BaseURL),
			wow.WithSoftwareType(w.SoftwareType),
			wow.WithLogger(a.Logger),
		))
	}

	var tracker pusher.Tracker
	serviceOpts := []puller.ServiceOption{puller.WithMetrics(metrics.New(reg))}
	if dm != nil && !dryRun {
		tracker = database.NewProgressTracker(dm)
		serviceOpts = append(serviceOpts, puller.WithArchive(dm))
	} else {
		mem, err := pusher.NewMemoryTracker(trackerCacheSize)
		if err != nil {
			return nil, err
		}
		tracker = mem
	}

	return puller.NewService(pullers, pushers, tracker, puller.ServiceConfig{
		Schedule: a.Config.Schedule,
		Timespan: a.Config.Reconcile.Timespan,
		Options:  opts,
	}, a.Logger, serviceOpts...), nil
}

// persistTokens stores the client's current tokens when the database is
// enabled and reports whether it did
func (a *App) persistTokens(dm *database.DatabaseManager, client *netatmo.Client) (bool, error) {
	if dm == nil {
		return false, nil
	}
	access, refresh, expiry := client.Tokens()
	if err := database.NewTokenStore(dm, a.Config.Netatmo.ClientID).SaveTokens(access, refresh, expiry); err != nil {
		return false, err
	}
	return true, nil
}

// codeExchanger starts and completes the OAuth code flow for serve and
// persists the result
type codeExchanger struct {
	app    *App
	dm     *database.DatabaseManager
	client *netatmo.Client

	mu      sync.Mutex
	pending string
}

func (e *codeExchanger) GetAuthorizationURL() (string, string, error) {
	authURL, state, err := e.client.GetAuthorizationURL()
	if err != nil {
		return "", "", err
	}
	e.mu.Lock()
	e.pending = state
	e.mu.Unlock()
	return authURL, state, nil
}

func (e *codeExchanger) GetAccessTokenFromCode(ctx context.Context, code string, state string) error {
	e.mu.Lock()
	pending := e.pending
	e.mu.Unlock()

	// "auth url" may have stored a new state after serve started
	if e.dm != nil && state != pending {
		stored, found, err := database.NewTokenStore(e.dm, e.app.Config.Netatmo.ClientID).Load(ctx)
		if err != nil {
			return err
		}
		if found {
			e.client.SetState(stored.State)
		}
	}

	if err := e.client.GetAccessTokenFromCode(ctx, code, state); err != nil {
		return err
	}
	saved, err := e.app.persistTokens(e.dm, e.client)
	if err != nil {
		return err
	}
	if !saved {
		e.app.Logger.Warn("Database disabled: netatmo tokens are kept in memory only")
	}
	return nil
}
