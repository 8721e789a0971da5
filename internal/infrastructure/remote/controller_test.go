package remote

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/remote/locator"
)

type driverFake struct {
	mu sync.Mutex

	startErrs []error
	starts    int
	stopErr   error
	stops     int
	forced    int

	// missing locators never become present.
	missing map[string]bool
	// failing maps "mode|locator" to an activation error.
	failing map[string]error

	calls []string
}

func newDriverFake() *driverFake {
	return &driverFake{missing: map[string]bool{}, failing: map[string]error{}}
}

func (f *driverFake) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *driverFake) has(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *driverFake) Start(context.Context) error {
	f.starts++
	if len(f.startErrs) >= f.starts {
		return f.startErrs[f.starts-1]
	}
	return nil
}

func (f *driverFake) Navigate(_ context.Context, url string) error {
	f.record("navigate " + url)
	return nil
}

func (f *driverFake) WaitPresent(ctx context.Context, l locator.Locator) error {
	if f.missing[l.String()] {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *driverFake) activation(mode Mode, l locator.Locator) error {
	f.record(string(mode) + " " + l.String())
	return f.failing[string(mode)+"|"+l.String()]
}

func (f *driverFake) Click(_ context.Context, l locator.Locator) error {
	return f.activation(ModeDirect, l)
}

func (f *driverFake) ScriptClick(_ context.Context, l locator.Locator) error {
	return f.activation(ModeScript, l)
}

func (f *driverFake) ScriptClickParent(_ context.Context, l locator.Locator) error {
	return f.activation(ModeScriptParent, l)
}

func (f *driverFake) Clear(_ context.Context, l locator.Locator) error {
	f.record("clear " + l.String())
	return nil
}

func (f *driverFake) SetValue(_ context.Context, l locator.Locator, value string) error {
	f.record("set " + l.String() + "=" + value)
	return nil
}

func (f *driverFake) DispatchChange(_ context.Context, l locator.Locator) error {
	f.record("change " + l.String())
	return nil
}

func (f *driverFake) Stop(context.Context) error {
	f.stops++
	return f.stopErr
}

func (f *driverFake) ForceStop() error {
	f.forced++
	return nil
}

func testConfig() Config {
	return Config{
		LocatorTimeout: 20 * time.Millisecond,
		OpenAttempts:   3,
		OpenBackoff:    time.Millisecond,
	}
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestController(d *driverFake) *Controller {
	return NewController(d, DefaultSelectors(), testConfig(), nil, WithSleep(noSleep))
}

func authenticated(t *testing.T, d *driverFake) *Controller {
	t.Helper()
	c := newTestController(d)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !c.Authenticate(context.Background(), "12345678900", "secret") {
		t.Fatal("Authenticate() = false")
	}
	return c
}

func TestOpenRetriesTransientFailures(t *testing.T) {
	d := newDriverFake()
	d.startErrs = []error{errors.New("devtools ws not ready"), errors.New("devtools ws not ready")}
	c := newTestController(d)

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if d.starts != 3 || c.State() != StateAuthenticating {
		t.Fatalf("expected 3 starts and authenticating state, got %d / %s", d.starts, c.State())
	}
}

func TestOpenGivesUp(t *testing.T) {
	d := newDriverFake()
	boom := errors.New("chrome not installed")
	d.startErrs = []error{boom, boom, boom, boom}
	c := newTestController(d)

	err := c.Open(context.Background())
	if !domain.IsKind(err, domain.ErrInitialization) {
		t.Fatalf("expected ErrInitialization, got %v", err)
	}
	if d.starts != 3 || c.State() != StateFailed {
		t.Fatalf("expected 3 attempts and failed state, got %d / %s", d.starts, c.State())
	}
}

func TestAuthenticateFillsFormByScript(t *testing.T) {
	d := newDriverFake()
	c := authenticated(t, d)

	if c.State() != StateAuthenticated {
		t.Fatalf("unexpected state %s", c.State())
	}
	for _, want := range []string{
		"navigate " + DefaultBaseURL,
		"set name:TxtLogin=12345678900",
		"set css:input[name='TxtSenha'][type='password']=secret",
		"script id:BtnEnviar",
	} {
		if !d.has(want) {
			t.Fatalf("expected call %q in %v", want, d.calls)
		}
	}
}

func TestAuthenticateFailsWhenLoginFieldMissing(t *testing.T) {
	d := newDriverFake()
	d.missing["name:TxtLogin"] = true
	d.missing["id:TxtLogin"] = true
	c := newTestController(d)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if c.Authenticate(context.Background(), "user", "pw") {
		t.Fatal("expected Authenticate() = false")
	}
	if c.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", c.State())
	}
}

type verifierFake struct{ err error }

func (v verifierFake) Verify(context.Context, Driver) error { return v.err }

func TestAuthenticateUsesVerifier(t *testing.T) {
	c := NewController(newDriverFake(), DefaultSelectors(), testConfig(), nil,
		WithSleep(noSleep), WithVerifier(verifierFake{err: errors.New("still on login page")}))
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.Authenticate(context.Background(), "user", "pw") {
		t.Fatal("expected verifier rejection")
	}
}

func TestNavigateFallsBackAcrossStrategiesAndModes(t *testing.T) {
	d := newDriverFake()
	sel := DefaultSelectors()
	semantic := sel.Module.Locators[0].String()
	structural := sel.Module.Locators[1].String()
	d.missing[semantic] = true
	d.failing["direct|"+structural] = errors.New("element not interactable")
	d.failing["script|"+structural] = errors.New("click is not a function")
	c := authenticated(t, d)

	if err := c.NavigateToTarget(context.Background()); err != nil {
		t.Fatalf("NavigateToTarget() error = %v", err)
	}
	if c.State() != StateNavigated {
		t.Fatalf("unexpected state %s", c.State())
	}
	if !d.has("script-parent " + structural) {
		t.Fatalf("expected parent click fallback, calls %v", d.calls)
	}
	if d.has("direct " + sel.Module.Locators[2].String()) {
		t.Fatal("fixed path must not be tried once a structural strategy succeeded")
	}
	if !d.has("navigate " + DefaultTargetURL) {
		t.Fatalf("expected direct navigation to the target form, calls %v", d.calls)
	}
}

func TestNavigateExhaustionIsNavigationError(t *testing.T) {
	d := newDriverFake()
	for _, l := range DefaultSelectors().Module.Locators {
		d.missing[l.String()] = true
	}
	c := authenticated(t, d)

	err := c.NavigateToTarget(context.Background())
	if !domain.IsKind(err, domain.ErrNavigation) {
		t.Fatalf("expected ErrNavigation, got %v", err)
	}
	if !strings.Contains(err.Error(), "module: all strategies failed") {
		t.Fatalf("expected descriptive reason, got %v", err)
	}
	if c.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", c.State())
	}
}

func TestSubmitIdentifierSequence(t *testing.T) {
	d := newDriverFake()
	c := authenticated(t, d)
	if err := c.NavigateToTarget(context.Background()); err != nil {
		t.Fatalf("NavigateToTarget() error = %v", err)
	}
	input := DefaultSelectors().ItemInput.Locators[0].String()

	d.calls = nil
	if err := c.SubmitIdentifier(context.Background(), "12345.678.901"); err != nil {
		t.Fatalf("SubmitIdentifier() error = %v", err)
	}
	want := []string{
		"clear " + input,
		"set " + input + "=12345.678.901",
		"change " + input,
		"direct " + DefaultSelectors().ItemAppend.Locators[0].String(),
	}
	if strings.Join(d.calls, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected calls:\n%s", strings.Join(d.calls, "\n"))
	}
}

func TestSubmitIdentifierFailureIsItemScoped(t *testing.T) {
	d := newDriverFake()
	c := authenticated(t, d)
	if err := c.NavigateToTarget(context.Background()); err != nil {
		t.Fatalf("NavigateToTarget() error = %v", err)
	}
	for _, l := range DefaultSelectors().ItemAppend.Locators {
		d.missing[l.String()] = true
	}

	err := c.SubmitIdentifier(context.Background(), "12345.678.901")
	if !domain.IsKind(err, domain.ErrItem) {
		t.Fatalf("expected ErrItem, got %v", err)
	}
	if c.State() != StateNavigated {
		t.Fatalf("item failure must not change state, got %s", c.State())
	}
}

func TestFinalizeFailure(t *testing.T) {
	d := newDriverFake()
	c := authenticated(t, d)
	if err := c.NavigateToTarget(context.Background()); err != nil {
		t.Fatalf("NavigateToTarget() error = %v", err)
	}
	for _, l := range DefaultSelectors().Confirm.Locators {
		d.missing[l.String()] = true
	}

	if err := c.Finalize(context.Background()); !domain.IsKind(err, domain.ErrFinalize) {
		t.Fatalf("expected ErrFinalize, got %v", err)
	}
}

func TestOperationsRequireState(t *testing.T) {
	c := newTestController(newDriverFake())

	if c.Authenticate(context.Background(), "u", "p") {
		t.Fatal("authenticate before open must fail")
	}
	if err := c.NavigateToTarget(context.Background()); !domain.IsKind(err, domain.ErrNavigation) {
		t.Fatalf("expected ErrNavigation, got %v", err)
	}
	if err := c.SubmitIdentifier(context.Background(), "12345.678.901"); !domain.IsKind(err, domain.ErrItem) {
		t.Fatalf("expected ErrItem, got %v", err)
	}
}

func TestCloseIsIdempotentAndForcesOnFailure(t *testing.T) {
	d := newDriverFake()
	d.stopErr = errors.New("target closed")
	c := newTestController(d)

	c.Close(context.Background())
	c.Close(context.Background())

	if c.State() != StateClosed {
		t.Fatalf("unexpected state %s", c.State())
	}
	if d.stops != 1 || d.forced != 1 {
		t.Fatalf("expected one stop and one forced stop, got %d / %d", d.stops, d.forced)
	}
	if err := c.Open(context.Background()); !domain.IsKind(err, domain.ErrInitialization) {
		t.Fatalf("open after close must fail, got %v", err)
	}
}
