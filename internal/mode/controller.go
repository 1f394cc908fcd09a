// Package mode implements the Demo/Delegated mode state machine.
package mode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/smartfi/internal/domain"
)

// DefaultDemoOTP is the one-time code the demo login endpoint accepts.
const DefaultDemoOTP = "demo"

// Persister stores the selected mode across restarts.
type Persister interface {
	PersistedMode(ctx context.Context) domain.PersistedMode
	SetMode(ctx context.Context, mode domain.PersistedMode)
	ClearMode(ctx context.Context)
}

// Authenticator performs the demo login side effect.
type Authenticator interface {
	Login(ctx context.Context, phoneNumber, otp string) error
}

// Fetcher is the part of the orchestrator the controller drives. Reset ends
// an epoch; FetchAllAt does nothing once its epoch has ended.
type Fetcher interface {
	FetchAllAt(ctx context.Context, epoch uint64)
	Epoch() uint64
	Reset()
}

// Config holds the controller's collaborators.
type Config struct {
	SessionID string
	Sessions  Persister
	Auth      Authenticator
	Fetcher   Fetcher
	DemoOTP   string
	Logger    *slog.Logger
}

// Controller switches between Demo and Delegated mode. Only one mode is
// active at a time.
type Controller struct {
	sessionID string
	sessions  Persister
	auth      Authenticator
	fetcher   Fetcher
	otp       string
	logger    *slog.Logger

	mu      sync.Mutex
	current domain.PersistedMode
}

// NewController creates a controller starting in ModeUnset.
func NewController(cfg Config) *Controller {
	if cfg.DemoOTP == "" {
		cfg.DemoOTP = DefaultDemoOTP
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		sessionID: cfg.SessionID,
		sessions:  cfg.Sessions,
		auth:      cfg.Auth,
		fetcher:   cfg.Fetcher,
		otp:       cfg.DemoOTP,
		logger:    cfg.Logger,
	}
}

// Current returns the session with its active mode.
func (c *Controller) Current() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Session{
		ID:          c.sessionID,
		Mode:        c.current.Mode,
		PhoneNumber: c.current.PhoneNumber,
	}
}

// Active reports whether any mode has been selected.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Mode != domain.ModeUnset
}

// EnterDemo switches to the demo profile for phoneNumber. The mode is
// persisted first, then the session logs in and all sources are fetched. A
// failed login is logged and does not undo the switch.
func (c *Controller) EnterDemo(ctx context.Context, phoneNumber string) error {
	if _, ok := domain.LookupDemoProfile(phoneNumber); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownDemoProfile, phoneNumber)
	}

	next := domain.PersistedMode{Mode: domain.ModeDemo, PhoneNumber: phoneNumber}
	prev, epoch := c.transition(ctx, next)
	if prev == next {
		c.logger.Debug("Already in demo mode", "phone", phoneNumber)
		return nil
	}

	c.logger.Info("Entered demo mode", "phone", phoneNumber, "previous", prev.Mode)
	c.activateDemo(ctx, phoneNumber, epoch)
	return nil
}

// EnterDelegated switches to delegated mode and clears every source, so no
// demo data survives into the delegated session.
func (c *Controller) EnterDelegated(ctx context.Context) {
	next := domain.PersistedMode{Mode: domain.ModeDelegated}
	prev, _ := c.transition(ctx, next)
	if prev == next {
		c.logger.Debug("Already in delegated mode")
		return
	}

	c.logger.Info("Entered delegated mode", "previous", prev.Mode)
}

// Restore reinstates the mode persisted by a previous run. A restored demo
// mode logs in again and fetches all sources.
func (c *Controller) Restore(ctx context.Context) domain.Session {
	pm := c.sessions.PersistedMode(ctx)

	switch pm.Mode {
	case domain.ModeDemo:
		if _, ok := domain.LookupDemoProfile(pm.PhoneNumber); !ok {
			c.logger.Warn("Ignoring persisted demo mode with unknown profile", "phone", pm.PhoneNumber)
			c.sessions.ClearMode(ctx)
			break
		}
		epoch := c.setCurrent(pm)
		c.logger.Info("Restored demo mode", "phone", pm.PhoneNumber)
		c.activateDemo(ctx, pm.PhoneNumber, epoch)
	case domain.ModeDelegated:
		c.setCurrent(pm)
		c.logger.Info("Restored delegated mode")
	default:
		c.logger.Debug("No persisted mode to restore")
	}
	return c.Current()
}

// transition persists next, makes it current and returns the previous mode
// with the fetcher epoch that belongs to next. Leaving a mode clears the
// record, and so does entering delegated mode.
func (c *Controller) transition(ctx context.Context, next domain.PersistedMode) (domain.PersistedMode, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.current
	c.sessions.SetMode(ctx, next)
	c.current = next
	if prev != next && (prev.Mode != domain.ModeUnset || next.Mode == domain.ModeDelegated) {
		c.fetcher.Reset()
	}
	return prev, c.fetcher.Epoch()
}

func (c *Controller) setCurrent(pm domain.PersistedMode) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = pm
	return c.fetcher.Epoch()
}

// activateDemo logs in and fetches for the demo mode that began at epoch. A
// mode change during login ends the epoch, so its data never lands.
func (c *Controller) activateDemo(ctx context.Context, phoneNumber string, epoch uint64) {
	if err := c.auth.Login(ctx, phoneNumber, c.otp); err != nil {
		c.logger.Error("Demo login failed", "phone", phoneNumber, "error", err)
		return
	}
	if c.fetcher.Epoch() != epoch {
		c.logger.Info("Mode changed during demo login, skipping fetch", "phone", phoneNumber)
		return
	}
	c.fetcher.FetchAllAt(ctx, epoch)
}
