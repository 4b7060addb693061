package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacobweinstock/vmedia"
	"github.com/jacobweinstock/vmedia/boot"
	"github.com/jacobweinstock/vmedia/imagestore"
	"github.com/jacobweinstock/vmedia/install"
	"github.com/jacobweinstock/vmedia/media"
	"github.com/jacobweinstock/vmedia/metrics"
	"github.com/jacobweinstock/vmedia/notify"
	"github.com/jacobweinstock/vmedia/power"
	"github.com/jacobweinstock/vmedia/readiness"
	"github.com/jacobweinstock/vmedia/redfish"
	"github.com/jacobweinstock/vmedia/telemetry"
)

// notifyTimeout bounds sending the result to all notifiers.
const notifyTimeout = 30 * time.Second

var errInstallFailed = errors.New("installation failed")

func newInstallCmd(opts *rootOptions) *cobra.Command {
	var pollInterval time.Duration
	cmd := &cobra.Command{
		Use:   "install NAME",
		Short: "Install the configured image on a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := opts.cfg.Target(args[0])
			if err != nil {
				return err
			}

			shutdown, err := telemetry.Init(ctx, "vmedia")
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.WithoutCancel(ctx)); err != nil {
					opts.log.Error(err, "failed to flush traces")
				}
			}()

			// the session is opened by the installer so an unreachable
			// endpoint is reported as a failed run.
			gw := opts.gateway(t)
			defer gw.Close(ctx)

			m := metrics.New()
			inst, err := opts.installer(ctx, gw, m, pollInterval)
			if err != nil {
				return err
			}
			res := inst.Install(ctx, t)

			if err := m.WriteTextfile(opts.cfg.MetricsFile); err != nil {
				opts.log.Error(err, "failed to write metrics", "file", opts.cfg.MetricsFile)
			}
			opts.notify(ctx, vmedia.Notification{Host: t.Endpoint, Target: t, Result: res})

			fmt.Fprintln(cmd.OutOrStdout(), res.Message())
			if !res.Succeeded {
				return fmt.Errorf("%w: %s: %v", errInstallFailed, res.FailedStep, res.Cause)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&pollInterval, "power-poll-interval", power.DefaultPollInterval, "interval between power state reads while waiting for power off")
	_ = cmd.Flags().MarkHidden("power-poll-interval")

	return cmd
}

func (o *rootOptions) gateway(t vmedia.Target) *redfish.Config {
	return redfish.New(t.Endpoint, t.Username, t.Password,
		redfish.WithTimeout(o.cfg.RequestTimeout),
		redfish.WithInsecureSkipVerify(!o.cfg.VerifyTLS),
		redfish.WithLogger(o.log.WithName("redfish")),
		redfish.WithLogRequests(o.log.V(1).Enabled()),
	)
}

func (o *rootOptions) installer(ctx context.Context, gw *redfish.Config, m *metrics.Metrics, pollInterval time.Duration) (*install.Installer, error) {
	cfg := o.cfg
	pc := power.New(gw,
		power.WithLogger(o.log.WithName("power")),
		power.WithPollInterval(pollInterval),
		power.WithOnPoll(func(vmedia.PowerState) { m.PowerPoll() }),
	)
	mc := media.New(gw, media.WithLogger(o.log.WithName("media")), media.WithWritable(cfg.WritableMedia))
	bc := boot.New(gw, o.log.WithName("boot"))

	resolver, err := o.resolver(ctx)
	if err != nil {
		return nil, err
	}
	iopts := []install.Option{
		install.WithLogger(o.log.WithName("install")),
		install.WithConnector(gw),
		install.WithMetrics(m),
		install.WithImageResolver(resolver),
		install.WithPowerOffTimeout(cfg.PowerOffTimeout),
		install.WithBootTarget(cfg.BootTarget),
		install.WithReadinessPort(cfg.Readiness.Port),
		install.WithReadinessTimeout(cfg.Readiness.Timeout, cfg.Readiness.Interval),
	}
	if cfg.WaitForSSH {
		iopts = append(iopts, install.WithReadiness(readiness.NewProber(o.log.WithName("readiness"))))
	}

	return install.New(pc, mc, bc, iopts...), nil
}

func (o *rootOptions) resolver(ctx context.Context) (*imagestore.Resolver, error) {
	s := o.cfg.S3
	ropts := []imagestore.Option{imagestore.WithTTL(s.PresignTTL), imagestore.WithLogger(o.log.WithName("imagestore"))}
	if s.Endpoint != "" || s.Region != "" || s.AccessKey != "" {
		client, err := imagestore.NewS3(ctx, imagestore.S3Config{
			Endpoint:       s.Endpoint,
			Region:         s.Region,
			AccessKey:      s.AccessKey,
			SecretKey:      s.SecretKey,
			ForcePathStyle: s.ForcePathStyle,
		})
		if err != nil {
			return nil, &vmedia.ConfigurationError{Name: "s3", Reason: err.Error()}
		}
		ropts = append(ropts, imagestore.WithPresigner(client))
	}

	return imagestore.New(ropts...), nil
}

// notify sends n to every configured notifier. Failures are logged only.
func (o *rootOptions) notify(ctx context.Context, n vmedia.Notification) {
	var notifiers notify.Multi
	if w := o.cfg.Notify.Webhook; w != nil {
		secrets := map[vmedia.Algorithm][]string{}
		for name, s := range w.Secrets {
			algo, err := vmedia.ParseAlgorithm(name)
			if err != nil {
				o.log.Error(err, "skipping webhook secrets")
				continue
			}
			secrets[algo] = append(secrets[algo], s...)
		}
		wh, err := notify.NewWebhook(w.URL,
			notify.WithSecrets(secrets),
			notify.WithLogger(o.log.WithName("webhook")),
			notify.WithLogNotifications(true),
		)
		if err != nil {
			o.log.Error(err, "webhook notifier disabled", "url", w.URL)
		} else {
			notifiers = append(notifiers, wh)
		}
	}
	if c := o.cfg.Notify.NATS; c != nil {
		nc, err := notify.NewNATS(c.URL, c.Subject)
		if err != nil {
			o.log.Error(err, "nats notifier disabled", "url", c.URL)
		} else {
			defer nc.Close()
			notifiers = append(notifiers, nc)
		}
	}
	if len(notifiers) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := notifiers.Notify(ctx, n); err != nil {
		o.log.Error(err, "failed to send notifications", "target", n.Target.Name, "runID", n.Result.RunID.String())
	}
}
