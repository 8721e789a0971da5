package remote

import (
	"context"

	"github.com/kirillkom/tombamento-bot/internal/infrastructure/remote/locator"
)

// Driver is the browser surface the controller needs. Every call that
// waits honours the deadline of ctx.
type Driver interface {
	Start(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	WaitPresent(ctx context.Context, l locator.Locator) error
	Click(ctx context.Context, l locator.Locator) error
	ScriptClick(ctx context.Context, l locator.Locator) error
	ScriptClickParent(ctx context.Context, l locator.Locator) error
	Clear(ctx context.Context, l locator.Locator) error
	SetValue(ctx context.Context, l locator.Locator, value string) error
	DispatchChange(ctx context.Context, l locator.Locator) error
	Stop(ctx context.Context) error
	ForceStop() error
}

// Mode is how a located element gets activated.
type Mode string

const (
	ModeDirect       Mode = "direct"
	ModeScript       Mode = "script"
	ModeScriptParent Mode = "script-parent"
)

func (m Mode) activate(ctx context.Context, d Driver, l locator.Locator) error {
	switch m {
	case ModeScript:
		return d.ScriptClick(ctx, l)
	case ModeScriptParent:
		return d.ScriptClickParent(ctx, l)
	default:
		return d.Click(ctx, l)
	}
}
