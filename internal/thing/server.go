package thing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/invocation"
	"github.com/oriys/labthings/internal/logging"
	"github.com/oriys/labthings/internal/metrics"
	"github.com/oriys/labthings/internal/observation"
	"github.com/oriys/labthings/internal/settings"
)

// Impl is implemented by every concrete Thing type: a struct that embeds
// *Thing anonymously (for the registration surface) exposes it back to the
// Server via ThingBase, so the Server can resolve slots and bind the
// observation hub without needing to know the concrete type.
type Impl interface {
	ThingBase() *Thing
}

// Server owns an ordered collection of mounted Things plus the shared
// infrastructure every Thing's HTTP/WS handlers dispatch through: the
// invocation manager, the observation registry, and the settings store.
// Grounded on the teacher's server assembly in cmd/zenith (one shared
// registry of named, independently lifecycled units plus shared
// infrastructure wired once at startup).
type Server struct {
	mu    sync.RWMutex
	order []string
	impls map[string]Impl
	bases map[string]*Thing

	Invocations *invocation.Manager
	Observation *observation.Registry
	Settings    *settings.Store
	Blobs       domain.Store

	BaseURL     string
	connections SlotConnections
}

// Config configures a new Server.
type Config struct {
	SettingsDir string
	Blobs       domain.Store
	BaseURL     string
	Invocation  invocation.Config
	// Connections overrides slot resolution per Thing per slot field,
	// taking priority over each slot's own tag default. See
	// SlotConnections.
	Connections SlotConnections
}

// NewServer constructs a Server with fresh invocation/observation/settings
// infrastructure ready for Things to be mounted onto it.
func NewServer(cfg Config) *Server {
	obs := observation.NewRegistry()

	invCfg := cfg.Invocation
	invCfg.Publish = func(thing string, msg domain.ObservationMessage) {
		obs.Hub(thing).Publish(msg)
	}

	return &Server{
		impls:       make(map[string]Impl),
		bases:       make(map[string]*Thing),
		Invocations: invocation.NewManager(invCfg),
		Observation: obs,
		Settings:    settings.NewStore(cfg.SettingsDir),
		Blobs:       cfg.Blobs,
		BaseURL:     cfg.BaseURL,
		connections: cfg.Connections,
	}
}

// Mount registers impl under name, in mount order. It does not resolve
// slots yet — slots are resolved for every mounted Thing at once, in
// Start, so that Things may depend on each other regardless of mount
// order.
func (s *Server) Mount(name string, impl Impl) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.impls[name]; exists {
		return fmt.Errorf("%w: a thing named %q is already mounted", domain.ErrConfiguration, name)
	}

	base := impl.ThingBase()
	if base == nil {
		return fmt.Errorf("%w: thing %q has a nil base", domain.ErrConfiguration, name)
	}

	s.order = append(s.order, name)
	s.impls[name] = impl
	s.bases[name] = base
	return nil
}

// Thing looks up a mounted Thing's registration surface by name.
func (s *Server) Thing(name string) (*Thing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.bases[name]
	return t, ok
}

// Things returns the mount-ordered names of every mounted Thing.
func (s *Server) Things() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Start resolves every Thing's slots, binds observation hubs, loads
// persisted settings, and runs Setup (for Things implementing Lifecycle)
// concurrently via an errgroup — grounded on the teacher's concurrent
// startup fan-out, simplified here since Thing setup has no dependency
// ordering beyond slot resolution, which already happened.
func (s *Server) Start(ctx context.Context) error {
	s.mu.RLock()
	order := append([]string(nil), s.order...)
	impls := make(map[string]any, len(s.impls))
	for k, v := range s.impls {
		impls[k] = v
	}
	s.mu.RUnlock()

	for _, name := range order {
		base := s.bases[name]
		if err := resolveSlots(name, impls[name], impls, s.connections[name]); err != nil {
			return err
		}
		base.bindHub(s.Observation.Hub(name))
		if err := s.Settings.Load(name, base.Settings()); err != nil {
			return fmt.Errorf("thing %q: %w", name, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range order {
		impl := s.impls[name]
		lifecycle, ok := impl.(Lifecycle)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := lifecycle.Setup(gctx); err != nil {
				return fmt.Errorf("thing %q setup: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.RLock()
	count := len(s.order)
	s.mu.RUnlock()
	metrics.SetThingsRegistered(count)

	logging.Op().Info("server started", "things", len(order))
	return nil
}

// Stop runs Teardown on every Thing implementing Lifecycle, in reverse
// mount order, tolerating individual failures (logged, not fatal) so one
// broken Thing's teardown cannot prevent the rest from releasing their
// resources — the original's server shutdown likewise tears down every
// Thing best-effort rather than aborting on the first error.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	order := append([]string(nil), s.order...)
	impls := make(map[string]Impl, len(s.impls))
	for k, v := range s.impls {
		impls[k] = v
	}
	s.mu.RUnlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		lifecycle, ok := impls[name].(Lifecycle)
		if !ok {
			continue
		}
		if err := lifecycle.Teardown(ctx); err != nil {
			logging.Op().Error("thing teardown failed", "thing", name, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("thing %q teardown: %w", name, err)
			}
		}
	}

	s.Invocations.Close()
	return firstErr
}

// SaveAllSettings persists every mounted Thing's current settings, used
// both by a manual "save settings" admin action and by a periodic
// best-effort save loop (see SettingsAutosaveLoop).
func (s *Server) SaveAllSettings() {
	s.mu.RLock()
	order := append([]string(nil), s.order...)
	bases := make(map[string]*Thing, len(s.bases))
	for k, v := range s.bases {
		bases[k] = v
	}
	s.mu.RUnlock()

	sort.Strings(order)
	for _, name := range order {
		if err := s.Settings.Save(name, bases[name].Settings()); err != nil {
			logging.Op().Warn("settings autosave failed", "thing", name, "err", err)
		}
	}
}

// SettingsAutosaveLoop periodically saves every Thing's settings until ctx
// is cancelled, so an unclean shutdown loses at most one interval's worth
// of setting changes.
func (s *Server) SettingsAutosaveLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SaveAllSettings()
		}
	}
}
