package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/remote/fallback"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/remote/locator"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/resilience"
)

type State string

const (
	StateUninitialized  State = "uninitialized"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateNavigated      State = "navigated"
	StateClosed         State = "closed"
	StateFailed         State = "failed"
)

var errWrongState = errors.New("operation not allowed in current state")

type Config struct {
	BaseURL        string
	TargetURL      string
	LocatorTimeout time.Duration

	// The remote form is a postback-heavy ASP.NET page; each settle
	// delay gives it time to re-render before the next lookup.
	SettleShort  time.Duration
	SettleLong   time.Duration
	LoginSettle  time.Duration
	ModuleSettle time.Duration

	OpenAttempts int
	OpenBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		TargetURL:      DefaultTargetURL,
		LocatorTimeout: 10 * time.Second,
		SettleShort:    1 * time.Second,
		SettleLong:     3 * time.Second,
		LoginSettle:    3 * time.Second,
		ModuleSettle:   5 * time.Second,
		OpenAttempts:   3,
		OpenBackoff:    2 * time.Second,
	}
}

// Controller drives one authenticated browser session against the
// remote asset form. It is not safe for concurrent batches; callers run
// one batch per controller.
type Controller struct {
	driver    Driver
	selectors Selectors
	cfg       Config
	verifier  LoginVerifier
	executor  *resilience.Executor
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
}

type Option func(*Controller)

func WithVerifier(v LoginVerifier) Option {
	return func(c *Controller) {
		if v != nil {
			c.verifier = v
		}
	}
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = fn }
}

func NewController(driver Driver, selectors Selectors, cfg Config, logger *slog.Logger, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.TargetURL == "" {
		cfg.TargetURL = def.TargetURL
	}
	if cfg.LocatorTimeout <= 0 {
		cfg.LocatorTimeout = def.LocatorTimeout
	}
	if cfg.OpenAttempts <= 0 {
		cfg.OpenAttempts = def.OpenAttempts
	}
	if cfg.OpenBackoff <= 0 {
		cfg.OpenBackoff = def.OpenBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", uuid.NewString())

	c := &Controller{
		driver:    driver,
		selectors: selectors,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepCtx,
		state:     StateUninitialized,
	}
	c.verifier = ElapsedVerifier{Wait: cfg.LoginSettle, sleep: c.sleepFn}
	c.executor = resilience.NewExecutor(resilience.SessionStartConfig(cfg.OpenAttempts, cfg.OpenBackoff), logger)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) sleepFn(ctx context.Context, d time.Duration) error {
	return c.sleep(ctx, d)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("session state", "from", prev, "to", s)
	}
}

func (c *Controller) require(op string, allowed ...State) error {
	current := c.State()
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return fmt.Errorf("%s in state %s: %w", op, current, errWrongState)
}

// Open acquires the browser, retrying transient start failures.
func (c *Controller) Open(ctx context.Context) error {
	if err := c.require("open", StateUninitialized); err != nil {
		return domain.WrapError(domain.ErrInitialization, "open session", err)
	}

	start := time.Now()
	err := c.executor.Execute(ctx, "browser.start", c.driver.Start, resilience.RetryAll)
	if err != nil {
		c.setState(StateFailed)
		c.logger.Error("browser start failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return domain.WrapError(domain.ErrInitialization, "open session", err)
	}

	c.setState(StateAuthenticating)
	c.logger.Info("browser started", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Authenticate fills the login form by script and submits it. The
// verifier decides whether the login took; the default only waits.
func (c *Controller) Authenticate(ctx context.Context, identity, secret string) bool {
	if err := c.require("authenticate", StateAuthenticating); err != nil {
		c.logger.Error("authenticate rejected", "error", err)
		return false
	}

	if err := c.login(ctx, identity, secret); err != nil {
		c.setState(StateFailed)
		c.logger.Error("login failed", "error", err)
		return false
	}
	if err := c.verifier.Verify(ctx, c.driver); err != nil {
		c.setState(StateFailed)
		c.logger.Error("login not verified", "error", err)
		return false
	}

	c.setState(StateAuthenticated)
	c.logger.Info("login submitted", "identity", identity)
	return true
}

func (c *Controller) login(ctx context.Context, identity, secret string) error {
	if err := c.driver.Navigate(ctx, c.cfg.BaseURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := c.sleep(ctx, c.cfg.LoginSettle); err != nil {
		return err
	}
	if err := c.assign(ctx, "login", c.selectors.Login, identity); err != nil {
		return err
	}
	if err := c.assign(ctx, "password", c.selectors.Password, secret); err != nil {
		return err
	}
	if err := c.activate(ctx, "login_submit", c.selectors.LoginSubmit); err != nil {
		return err
	}
	return nil
}

// NavigateToTarget selects the asset module, opens the target form and
// starts a new inclusion.
func (c *Controller) NavigateToTarget(ctx context.Context) error {
	if err := c.require("navigate", StateAuthenticated); err != nil {
		return domain.WrapError(domain.ErrNavigation, "navigate", err)
	}

	if err := c.navigate(ctx); err != nil {
		if ctx.Err() == nil {
			c.setState(StateFailed)
		}
		return domain.WrapError(domain.ErrNavigation, "navigate", err)
	}

	c.setState(StateNavigated)
	c.logger.Info("target form ready", "url", c.cfg.TargetURL)
	return nil
}

func (c *Controller) navigate(ctx context.Context) error {
	if err := c.sleep(ctx, c.cfg.ModuleSettle); err != nil {
		return err
	}
	if err := c.activate(ctx, "module", c.selectors.Module); err != nil {
		return fmt.Errorf("select module: %w", err)
	}
	if err := c.sleep(ctx, c.cfg.ModuleSettle); err != nil {
		return err
	}

	if err := c.driver.Navigate(ctx, c.cfg.TargetURL); err != nil {
		return fmt.Errorf("open target form: %w", err)
	}
	if err := c.sleep(ctx, c.cfg.ModuleSettle); err != nil {
		return err
	}

	if err := c.activate(ctx, "add_new", c.selectors.AddNew); err != nil {
		return fmt.Errorf("start inclusion: %w", err)
	}
	return c.sleep(ctx, c.cfg.SettleLong)
}

// SubmitIdentifier types one identifier into the form and appends it to
// the pending list. Failures are item-scoped; the session stays usable.
func (c *Controller) SubmitIdentifier(ctx context.Context, id domain.Identifier) error {
	if err := c.require("submit", StateNavigated); err != nil {
		return domain.WrapError(domain.ErrItem, "submit "+id.String(), err)
	}
	if err := c.submit(ctx, id); err != nil {
		return domain.WrapError(domain.ErrItem, "submit "+id.String(), err)
	}
	return nil
}

func (c *Controller) submit(ctx context.Context, id domain.Identifier) error {
	if err := c.sleep(ctx, c.cfg.SettleShort); err != nil {
		return err
	}
	input, err := c.locate(ctx, "item_input", c.selectors.ItemInput)
	if err != nil {
		return err
	}
	if err := c.driver.Clear(ctx, input); err != nil {
		return fmt.Errorf("clear input: %w", err)
	}
	if err := c.sleep(ctx, c.cfg.SettleShort); err != nil {
		return err
	}
	if err := c.driver.SetValue(ctx, input, id.String()); err != nil {
		return fmt.Errorf("set input: %w", err)
	}
	if err := c.driver.DispatchChange(ctx, input); err != nil {
		return fmt.Errorf("dispatch change: %w", err)
	}
	if err := c.sleep(ctx, c.cfg.SettleShort); err != nil {
		return err
	}
	if err := c.activate(ctx, "item_append", c.selectors.ItemAppend); err != nil {
		return err
	}
	return c.sleep(ctx, c.cfg.SettleShort)
}

// Finalize saves the pending list and confirms the dialog.
func (c *Controller) Finalize(ctx context.Context) error {
	if err := c.require("finalize", StateNavigated); err != nil {
		return domain.WrapError(domain.ErrFinalize, "finalize", err)
	}
	if err := c.finalize(ctx); err != nil {
		return domain.WrapError(domain.ErrFinalize, "finalize", err)
	}
	c.logger.Info("batch saved")
	return nil
}

func (c *Controller) finalize(ctx context.Context) error {
	if err := c.activate(ctx, "save", c.selectors.Save); err != nil {
		return err
	}
	if err := c.sleep(ctx, c.cfg.SettleShort); err != nil {
		return err
	}
	if err := c.activate(ctx, "confirm", c.selectors.Confirm); err != nil {
		return err
	}
	return c.sleep(ctx, c.cfg.SettleLong)
}

// Close releases the browser from any state and never fails. A failed
// graceful stop is followed by a forced one.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	if err := c.stop(ctx); err != nil {
		c.logger.Warn("browser stop failed", "error", err)
		if ferr := c.forceStop(); ferr != nil {
			c.logger.Error("browser force stop failed", "error", ferr)
		}
	}
	c.logger.Info("session closed")
}

func (c *Controller) stop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during stop: %v", r)
		}
	}()
	return c.driver.Stop(ctx)
}

func (c *Controller) forceStop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during force stop: %v", r)
		}
	}()
	return c.driver.ForceStop()
}

// locate returns the first locator of ctl whose element shows up
// within LocatorTimeout.
func (c *Controller) locate(ctx context.Context, name string, ctl Control) (locator.Locator, error) {
	var found locator.Locator
	chain := fallback.Chain{Name: name}
	for _, l := range ctl.Locators {
		chain.Steps = append(chain.Steps, fallback.Step{
			Name: l.String(),
			Run: func(ctx context.Context) error {
				if err := c.waitPresent(ctx, l); err != nil {
					return err
				}
				found = l
				return nil
			},
		})
	}
	won, err := chain.Run(ctx)
	if err != nil {
		return locator.Locator{}, err
	}
	c.logger.Debug("control located", "control", name, "strategy", won)
	return found, nil
}

// activate finds ctl and clicks it, trying each interaction mode on each
// locator before moving on to the next locator.
func (c *Controller) activate(ctx context.Context, name string, ctl Control) error {
	modes := ctl.Modes
	if len(modes) == 0 {
		modes = clickModes
	}

	chain := fallback.Chain{Name: name}
	for _, l := range ctl.Locators {
		chain.Steps = append(chain.Steps, fallback.Step{
			Name: l.String(),
			Run: func(ctx context.Context) error {
				if err := c.waitPresent(ctx, l); err != nil {
					return err
				}
				inner := fallback.Chain{Name: l.String()}
				for _, m := range modes {
					inner.Steps = append(inner.Steps, fallback.Step{
						Name: string(m),
						Run: func(ctx context.Context) error {
							actx, cancel := context.WithTimeout(ctx, c.cfg.LocatorTimeout)
							defer cancel()
							return m.activate(actx, c.driver, l)
						},
					})
				}
				mode, err := inner.Run(ctx)
				if err == nil {
					c.logger.Debug("control activated", "control", name, "strategy", l.String(), "mode", mode)
				}
				return err
			},
		})
	}
	_, err := chain.Run(ctx)
	return err
}

// assign sets the value of the first located element by script.
func (c *Controller) assign(ctx context.Context, name string, ctl Control, value string) error {
	l, err := c.locate(ctx, name, ctl)
	if err != nil {
		return err
	}
	if err := c.driver.SetValue(ctx, l, value); err != nil {
		return fmt.Errorf("%s: set value: %w", name, err)
	}
	return nil
}

func (c *Controller) waitPresent(ctx context.Context, l locator.Locator) error {
	wctx, cancel := context.WithTimeout(ctx, c.cfg.LocatorTimeout)
	defer cancel()
	if err := c.driver.WaitPresent(wctx, l); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("not found within %s", c.cfg.LocatorTimeout)
		}
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
