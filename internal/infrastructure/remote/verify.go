package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/tombamento-bot/internal/infrastructure/remote/locator"
)

// LoginVerifier decides whether a submitted login succeeded.
type LoginVerifier interface {
	Verify(ctx context.Context, d Driver) error
}

// ElapsedVerifier waits and assumes success. The remote login page gives
// no reliable failure signal, so this is the default.
type ElapsedVerifier struct {
	Wait  time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

func (v ElapsedVerifier) Verify(ctx context.Context, _ Driver) error {
	if v.sleep != nil {
		return v.sleep(ctx, v.Wait)
	}
	return sleepCtx(ctx, v.Wait)
}

// PresenceVerifier treats login as successful once an element that only
// exists after login shows up.
type PresenceVerifier struct {
	Locators []locator.Locator
	Timeout  time.Duration
}

func (v PresenceVerifier) Verify(ctx context.Context, d Driver) error {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	for _, l := range v.Locators {
		wctx, cancel := context.WithTimeout(ctx, timeout)
		err := d.WaitPresent(wctx, l)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("no post-login marker appeared within %s", timeout)
}
