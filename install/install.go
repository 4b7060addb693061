// Package install runs the unattended OS install workflow against one target:
// power off, insert the image, boot once from it, power on, optionally wait for
// the installed host, then eject the image.
package install

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/metrics"
	"github.com/jacobweinstock/vmedia/readiness"
)

const (
	tracerName = "github.com/jacobweinstock/vmedia/install"

	DefaultPowerOffTimeout = 60 * time.Second

	stepReadiness = "await_readiness"
	stepCleanup   = "cleanup"
)

// Power is the subset of the power controller the workflow needs.
type Power interface {
	State(ctx context.Context) (vmedia.PowerState, error)
	ForceOff(ctx context.Context) (ok bool, err error)
	On(ctx context.Context) (ok bool, err error)
	WaitForState(ctx context.Context, target vmedia.PowerState, timeout time.Duration) (bool, error)
}

// Media inserts and ejects the install image.
type Media interface {
	Mount(ctx context.Context, imageURL string) (ok bool, err error)
	Unmount(ctx context.Context) (ok bool, err error)
}

// Boot sets the next boot device.
type Boot interface {
	SetOneTimeBoot(ctx context.Context, target string) (ok bool, err error)
}

// Connector opens the session to the management endpoint.
type Connector interface {
	Open(ctx context.Context) error
}

// Prober waits for a port on the installed host.
type Prober interface {
	AwaitPort(ctx context.Context, host string, port int, timeout, interval time.Duration) bool
}

// ImageResolver turns a configured image location into a URL the management endpoint can fetch.
type ImageResolver interface {
	Resolve(ctx context.Context, imageURL string) (string, error)
}

// Installer drives the workflow. It holds no per run state and does no retries.
type Installer struct {
	Power  Power
	Media  Media
	Boot   Boot
	Prober Prober
	Images ImageResolver
	// Connector, when set, is opened before the first power state read.
	Connector Connector

	Logger  logr.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer

	// WaitForReadiness enables the readiness check after power on. It requires a Prober.
	WaitForReadiness  bool
	ReadinessPort     int
	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration
	PowerOffTimeout   time.Duration
	BootTarget        string

	now func() time.Time
}

// Option for setting optional Installer values.
type Option func(*Installer)

func WithLogger(l logr.Logger) Option {
	return func(i *Installer) { i.Logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Installer) { i.Metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(i *Installer) { i.Tracer = t }
}

// WithConnector opens c at the start of every run. A failure to open
// fails the run at power_off.
func WithConnector(c Connector) Option {
	return func(i *Installer) { i.Connector = c }
}

func WithImageResolver(r ImageResolver) Option {
	return func(i *Installer) { i.Images = r }
}

// WithReadiness enables waiting for the installed host with p.
func WithReadiness(p Prober) Option {
	return func(i *Installer) {
		i.Prober = p
		i.WaitForReadiness = p != nil
	}
}

func WithReadinessPort(port int) Option {
	return func(i *Installer) { i.ReadinessPort = port }
}

func WithReadinessTimeout(timeout, interval time.Duration) Option {
	return func(i *Installer) {
		i.ReadinessTimeout = timeout
		i.ReadinessInterval = interval
	}
}

func WithPowerOffTimeout(d time.Duration) Option {
	return func(i *Installer) { i.PowerOffTimeout = d }
}

func WithBootTarget(target string) Option {
	return func(i *Installer) { i.BootTarget = target }
}

// New returns an Installer.
//
// Defaults:
//
//	PowerOffTimeout: 60s
//	BootTarget: Cd
//	ReadinessPort: 22
//	ReadinessTimeout: 30m
//	ReadinessInterval: 30s
//	WaitForReadiness: false
//	Tracer: the global tracer provider
func New(p Power, m Media, b Boot, opts ...Option) *Installer {
	i := &Installer{
		Power:             p,
		Media:             m,
		Boot:              b,
		Logger:            logr.Discard(),
		Tracer:            otel.Tracer(tracerName),
		ReadinessPort:     readiness.DefaultPort,
		ReadinessTimeout:  readiness.DefaultTimeout,
		ReadinessInterval: readiness.DefaultInterval,
		PowerOffTimeout:   DefaultPowerOffTimeout,
		BootTarget:        vmedia.BootTargetCD,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install runs the workflow for t and always returns a terminal Result.
// A failure in power_off, mount_iso, set_boot or power_on ends the run without cleanup.
// Readiness and cleanup outcomes are recorded but never fail the run.
func (i *Installer) Install(ctx context.Context, t vmedia.Target) (res vmedia.Result) {
	res = vmedia.Result{
		RunID:     uuid.New(),
		Target:    t.Name,
		StartedAt: i.now(),
		States:    []vmedia.State{vmedia.StateIdle},
	}
	log := i.Logger.WithValues("target", t.Name, "runID", res.RunID.String())
	ctx, span := i.Tracer.Start(ctx, "install", trace.WithAttributes(
		attribute.String("vmedia.target", t.Name),
		attribute.String("vmedia.run_id", res.RunID.String()),
	))
	// current is the workflow step a panic outside of step is attributed to.
	current := vmedia.StepPowerOff
	defer func() {
		if r := recover(); r != nil {
			res.States = append(res.States, vmedia.StateFailed)
			res.FailedStep = current
			res.Cause = fmt.Errorf("panic: %v", r)
			res.Succeeded = false
		}
		res.FinishedAt = i.now()
		i.Metrics.RunFinished(res.Succeeded)
		if !res.Succeeded {
			span.SetStatus(codes.Error, res.FailedStep)
		}
		span.End()
	}()
	log.Info("starting installation", "image", t.ImageURL)

	fail := func(step string, err error) vmedia.Result {
		res.States = append(res.States, vmedia.StateFailed)
		res.FailedStep = step
		res.Cause = err
		log.Error(err, "installation failed", "step", step)
		return res
	}

	if i.Connector != nil {
		if err := i.Connector.Open(ctx); err != nil {
			i.Metrics.ObserveStep(vmedia.StepPowerOff, metrics.Failure, 0)
			return fail(vmedia.StepPowerOff, err)
		}
	}

	// power off, skipped when already off.
	state, err := i.Power.State(ctx)
	if err != nil {
		i.Metrics.ObserveStep(vmedia.StepPowerOff, metrics.Failure, 0)
		return fail(vmedia.StepPowerOff, err)
	}
	if state != vmedia.PowerOff {
		err := i.step(ctx, &res, vmedia.StatePoweringOff, vmedia.StepPowerOff, func(ctx context.Context) error {
			log.Info("powering off", "state", state)
			if err := outcome(i.Power.ForceOff(ctx))("failed to power off"); err != nil {
				return err
			}
			ok, err := i.Power.WaitForState(ctx, vmedia.PowerOff, i.PowerOffTimeout)
			return outcome(ok, err)("server did not power off")
		})
		if err != nil {
			return fail(vmedia.StepPowerOff, err)
		}
	} else {
		log.V(1).Info("already powered off")
		i.Metrics.ObserveStep(vmedia.StepPowerOff, metrics.Skipped, 0)
	}

	current = vmedia.StepMountISO
	err = i.step(ctx, &res, vmedia.StateMediaMounting, vmedia.StepMountISO, func(ctx context.Context) error {
		image := t.ImageURL
		if i.Images != nil {
			resolved, err := i.Images.Resolve(ctx, image)
			if err != nil {
				return err
			}
			image = resolved
		}
		log.Info("mounting image", "image", t.ImageURL)
		return outcome(i.Media.Mount(ctx, image))("failed to mount image")
	})
	if err != nil {
		return fail(vmedia.StepMountISO, err)
	}

	current = vmedia.StepSetBoot
	err = i.step(ctx, &res, vmedia.StateBootConfiguring, vmedia.StepSetBoot, func(ctx context.Context) error {
		log.Info("setting one time boot", "bootTarget", i.BootTarget)
		return outcome(i.Boot.SetOneTimeBoot(ctx, i.BootTarget))("failed to set boot order")
	})
	if err != nil {
		return fail(vmedia.StepSetBoot, err)
	}

	// the power on is not confirmed, the install continues on the host.
	current = vmedia.StepPowerOn
	err = i.step(ctx, &res, vmedia.StatePoweringOn, vmedia.StepPowerOn, func(ctx context.Context) error {
		log.Info("powering on")
		return outcome(i.Power.On(ctx))("failed to power on")
	})
	if err != nil {
		return fail(vmedia.StepPowerOn, err)
	}

	if i.WaitForReadiness && i.Prober != nil {
		err := i.step(ctx, &res, vmedia.StateAwaitingReadiness, stepReadiness, func(ctx context.Context) error {
			log.Info("waiting for installed host", "host", t.Host, "port", i.ReadinessPort)
			if i.Prober.AwaitPort(ctx, t.Host, i.ReadinessPort, i.ReadinessTimeout, i.ReadinessInterval) {
				return nil
			}
			return &vmedia.TimeoutError{Op: fmt.Sprintf("wait for %s port %d", t.Host, i.ReadinessPort), After: i.ReadinessTimeout}
		})
		reached := err == nil
		res.ReadinessReached = &reached
		if err != nil {
			log.Info("installed host did not become reachable, continuing", "host", t.Host, "err", err.Error())
		}
	}

	// cleanup runs even when ctx was canceled while waiting.
	err = i.step(context.WithoutCancel(ctx), &res, vmedia.StateCleaningUp, stepCleanup, func(ctx context.Context) error {
		log.Info("ejecting image")
		return outcome(i.Media.Unmount(ctx))("failed to eject image")
	})
	res.CleanupOK = err == nil
	if err != nil {
		log.Info("cleanup failed, the image may still be inserted", "err", err.Error())
	}

	res.States = append(res.States, vmedia.StateSucceeded)
	res.Succeeded = true
	log.Info("installation completed")

	return res
}

// step enters state and runs fn inside a span. A panic in fn is returned as an error.
func (i *Installer) step(ctx context.Context, res *vmedia.Result, state vmedia.State, name string, fn func(context.Context) error) (err error) {
	res.States = append(res.States, state)
	ctx, span := i.Tracer.Start(ctx, name)
	start := i.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", name, r)
		}
		result := metrics.Success
		if err != nil {
			result = metrics.Failure
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		i.Metrics.ObserveStep(name, result, i.now().Sub(start))
		span.End()
	}()

	return fn(ctx)
}

// outcome converts a controller (ok, err) pair into an error, using msg when the
// controller reported failure without a cause.
func outcome(ok bool, err error) func(msg string) error {
	return func(msg string) error {
		if err != nil {
			return err
		}
		if !ok {
			return errors.New(msg)
		}
		return nil
	}
}
