// Package chromedriver implements the remote driver over the Chrome
// DevTools protocol.
package chromedriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/kirillkom/tombamento-bot/internal/infrastructure/remote/locator"
)

var errNotStarted = errors.New("browser not started")

type Options struct {
	Headless    bool
	ExecPath    string
	UserDataDir string
	WindowW     int
	WindowH     int
}

// Driver owns one Chrome process and one tab.
type Driver struct {
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

func New(opts Options, logger *slog.Logger) *Driver {
	if opts.WindowW <= 0 || opts.WindowH <= 0 {
		opts.WindowW, opts.WindowH = 1366, 900
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{opts: opts, logger: logger}
}

func (d *Driver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("start-maximized", true),
		chromedp.WindowSize(d.opts.WindowW, d.opts.WindowH),
	)
	if d.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.opts.ExecPath))
	}
	if d.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(d.opts.UserDataDir))
	}
	return opts
}

// Start launches the browser and opens the tab. A failed start leaves
// nothing running, so it can be retried.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tabCtx != nil {
		return nil
	}

	// The browser outlives the ctx of this call; it is bound to Stop.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			d.logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			d.logger.Warn("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)

	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}

	d.allocCancel, d.tabCtx, d.tabCancel = allocCancel, tabCtx, tabCancel
	return nil
}

func (d *Driver) tab() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tabCtx
}

// run executes actions on the tab, bounded by the deadline and
// cancellation of ctx.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	tab := d.tab()
	if tab == nil {
		return errNotStarted
	}
	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func queryOptions(l locator.Locator) (string, []chromedp.QueryOption) {
	kind, q := l.Query()
	if kind == locator.QueryXPath {
		return q, []chromedp.QueryOption{chromedp.BySearch}
	}
	return q, []chromedp.QueryOption{chromedp.ByQuery}
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *Driver) WaitPresent(ctx context.Context, l locator.Locator) error {
	sel, opts := queryOptions(l)
	return d.run(ctx, chromedp.WaitReady(sel, opts...))
}

func (d *Driver) Click(ctx context.Context, l locator.Locator) error {
	sel, opts := queryOptions(l)
	return d.run(ctx, chromedp.Click(sel, opts...))
}

func (d *Driver) Clear(ctx context.Context, l locator.Locator) error {
	sel, opts := queryOptions(l)
	return d.run(ctx, chromedp.Clear(sel, opts...))
}

func (d *Driver) ScriptClick(ctx context.Context, l locator.Locator) error {
	return d.evalOnElement(ctx, l, "el.click();")
}

func (d *Driver) ScriptClickParent(ctx context.Context, l locator.Locator) error {
	return d.evalOnElement(ctx, l, "if (!el.parentElement) { return false; } el.parentElement.click();")
}

func (d *Driver) SetValue(ctx context.Context, l locator.Locator, value string) error {
	return d.evalOnElement(ctx, l, "el.value = "+jsString(value)+";")
}

func (d *Driver) DispatchChange(ctx context.Context, l locator.Locator) error {
	return d.evalOnElement(ctx, l, "el.dispatchEvent(new Event('change', { bubbles: true }));")
}

// evalOnElement runs body with el bound to the located element. The
// script reports false when the element is gone.
func (d *Driver) evalOnElement(ctx context.Context, l locator.Locator, body string) error {
	script := fmt.Sprintf("(function() { var el = %s; if (!el) { return false; } %s return true; })()", l.JSExpr(), body)
	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("element %s not found", l)
	}
	return nil
}

// Stop closes the tab and the browser gracefully.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	tabCtx, tabCancel, allocCancel := d.tabCtx, d.tabCancel, d.allocCancel
	d.tabCtx, d.tabCancel = nil, nil
	d.mu.Unlock()

	if tabCtx == nil {
		return nil
	}
	err := chromedp.Cancel(tabCtx)
	tabCancel()
	if err != nil {
		// Keep the allocator so ForceStop can kill the process.
		return fmt.Errorf("close browser: %w", err)
	}
	d.mu.Lock()
	d.allocCancel = nil
	d.mu.Unlock()
	allocCancel()
	return nil
}

// ForceStop kills the browser process.
func (d *Driver) ForceStop() error {
	d.mu.Lock()
	tabCancel, allocCancel := d.tabCancel, d.allocCancel
	d.tabCtx, d.tabCancel, d.allocCancel = nil, nil, nil
	d.mu.Unlock()

	if tabCancel != nil {
		tabCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	return nil
}
