package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datawire/goasyn/pkg/asyn"
	"github.com/datawire/goasyn/pkg/asynconfig"
	"github.com/datawire/goasyn/pkg/asynlog"
	"github.com/datawire/goasyn/pkg/asynmetrics"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "asynd",
		Short:        "Run a demonstration asyn manager host",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	return cmd
}

func run(ctx context.Context) error {
	l := logrus.New()
	l.SetFormatter(asynlog.NewFormatter(time.RFC3339))
	ctx = dlog.WithLogger(ctx, l)

	cfg, err := asynconfig.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		l.SetLevel(lvl)
	}

	dlog.Infof(ctx, "asynd starting [pid:%d]", os.Getpid())

	sink := asynmetrics.NewSink(prometheus.DefaultRegisterer)
	mgrCtx, cancelMgr := context.WithCancel(ctx)
	defer cancelMgr()
	mgr := asyn.NewManager(mgrCtx, sink)
	if err := mgr.SetTraceMask(nil, cfg.TraceMask()); err != nil {
		return fmt.Errorf("setting default trace mask: %w", err)
	}
	if err := asynconfig.RegisterPorts(mgr, cfg); err != nil {
		return err
	}

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
		ShutdownOnNonError:   true,
	})

	g.Go("metrics", func(ctx context.Context) error {
		if cfg.MetricsAddr == "" {
			dlog.Info(ctx, "metrics server disabled (ASYN_METRICS_ADDR empty)")
			return nil
		}
		return asynmetrics.Serve(ctx, cfg.MetricsAddr)
	})

	g.Go("report", func(ctx context.Context) error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, r := range mgr.Report() {
					dlog.Infof(ctx, "port %q: enabled=%v connected=%v autoConnect=%v devices=%d queues=%v",
						r.Name, r.Enabled, r.Connected, r.AutoConnect, r.NumDevices, r.QueueDepths)
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go("manager", func(ctx context.Context) error {
		<-ctx.Done()
		if err := mgr.Shutdown(); err != nil {
			dlog.Errorf(ctx, "port shutdown: %v", err)
		}
		cancelMgr()
		return mgr.Wait()
	})

	err = g.Wait()
	dlog.Info(ctx, "asynd stopped")
	return err
}
