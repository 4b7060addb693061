// Package power reads and sets the chassis power state of a Redfish system.
package power

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/redfish"
)

// DefaultPollInterval is how often WaitForState reads the power state.
const DefaultPollInterval = 5 * time.Second

// Controller controls the power of the first system of a management endpoint.
type Controller struct {
	Client redfish.Client
	Logger logr.Logger
	// PollInterval for WaitForState.
	PollInterval time.Duration
	// OnPoll, when set, is called after every state read of WaitForState.
	OnPoll func(vmedia.PowerState)

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option for setting optional Controller values.
type Option func(*Controller)

func WithLogger(l logr.Logger) Option {
	return func(c *Controller) { c.Logger = l }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.PollInterval = d }
}

func WithOnPoll(fn func(vmedia.PowerState)) Option {
	return func(c *Controller) { c.OnPoll = fn }
}

// New returns a Controller. Defaults: PollInterval 5s, Logger logr.Discard().
func New(client redfish.Client, opts ...Option) *Controller {
	c := &Controller{
		Client:       client,
		Logger:       logr.Discard(),
		PollInterval: DefaultPollInterval,
		now:          time.Now,
		sleep:        sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reads the current power state. The system is resolved on every call.
func (c *Controller) State(ctx context.Context) (vmedia.PowerState, error) {
	system, err := redfish.FirstMember(ctx, c.Client, redfish.SystemsPath)
	if err != nil {
		return vmedia.PowerUnknown, err
	}
	var sys redfish.ComputerSystem
	if err := c.Client.Read(ctx, system, &sys); err != nil {
		return vmedia.PowerUnknown, err
	}
	if sys.PowerState == "" {
		return vmedia.PowerUnknown, nil
	}
	return vmedia.PowerState(sys.PowerState), nil
}

// On powers the system on.
func (c *Controller) On(ctx context.Context) (ok bool, err error) {
	return c.reset(ctx, vmedia.ResetOn)
}

// GracefulOff asks the OS to shut down.
func (c *Controller) GracefulOff(ctx context.Context) (ok bool, err error) {
	return c.reset(ctx, vmedia.ResetGracefulShutdown)
}

// ForceOff cuts power immediately.
func (c *Controller) ForceOff(ctx context.Context) (ok bool, err error) {
	return c.reset(ctx, vmedia.ResetForceOff)
}

// GracefulRestart asks the OS to reboot.
func (c *Controller) GracefulRestart(ctx context.Context) (ok bool, err error) {
	return c.reset(ctx, vmedia.ResetGracefulRestart)
}

// ForceRestart resets the system immediately.
func (c *Controller) ForceRestart(ctx context.Context) (ok bool, err error) {
	return c.reset(ctx, vmedia.ResetForceRestart)
}

// PowerSet maps bmclib style power verbs to reset actions.
func (c *Controller) PowerSet(ctx context.Context, state string) (ok bool, err error) {
	switch strings.ToLower(state) {
	case "on":
		return c.On(ctx)
	case "off":
		return c.ForceOff(ctx)
	case "soft":
		return c.GracefulOff(ctx)
	case "reset":
		return c.ForceRestart(ctx)
	case "cycle":
		return c.GracefulRestart(ctx)
	}

	return false, fmt.Errorf("requested power state %q is not supported", state)
}

// reset returns ok when the endpoint accepted the reset. It does not confirm the resulting state.
func (c *Controller) reset(ctx context.Context, action vmedia.ResetType) (bool, error) {
	system, err := redfish.FirstMember(ctx, c.Client, redfish.SystemsPath)
	if err == nil {
		err = c.Client.Mutate(ctx, http.MethodPost, system+redfish.ResetAction, redfish.ResetRequest{ResetType: action})
	}
	if err != nil {
		c.Logger.Error(err, "power action failed", "action", action)
		return false, err
	}
	c.Logger.V(1).Info("power action accepted", "action", action)
	return true, nil
}

// WaitForState polls State every PollInterval until it equals target or timeout elapses.
// It returns false with a *vmedia.TimeoutError when the timeout elapsed, and false with the
// context error when ctx is done. Read errors while polling count as "not yet".
func (c *Controller) WaitForState(ctx context.Context, target vmedia.PowerState, timeout time.Duration) (bool, error) {
	start := c.now()
	for c.now().Sub(start) < timeout {
		state, err := c.State(ctx)
		if c.OnPoll != nil {
			c.OnPoll(state)
		}
		if err != nil {
			c.Logger.V(1).Info("power state read failed while waiting", "target", target, "err", err.Error())
		} else if state == target {
			return true, nil
		}
		if err := c.sleep(ctx, c.PollInterval); err != nil {
			return false, err
		}
	}

	return false, &vmedia.TimeoutError{Op: fmt.Sprintf("wait for power state %s", target), After: timeout}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
