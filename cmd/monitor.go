// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsctl/pkg/bmsclient"
	"github.com/Thermoquad/bmsctl/pkg/transport"
)

var (
	monitorInterval time.Duration
	monitorCategory string
	metricsAddr     string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live pack status with an interactive TUI",
	Long: `Poll the status block (and optionally one parameter category) and show
it in a full-screen view together with link statistics.

With --metrics-addr the transport counters are also served for Prometheus at
/metrics while the monitor runs.

Press 'r' to poll now, 'q' to quit.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 2*time.Second, "Poll interval")
	monitorCmd.Flags().StringVar(&monitorCategory, "category", "", "Parameter category to show (needs --params)")
	monitorCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9108")
}

// statusPoller reads the status block and the selected category
type statusPoller struct {
	client   *bmsclient.Client
	category string
}

func (p statusPoller) poll(ctx context.Context) (pollResult, error) {
	st, err := p.client.ReadStatus(ctx)
	if err != nil {
		return pollResult{}, err
	}
	r := pollResult{status: st}
	if p.category != "" {
		vs, err := p.client.GetCategory(ctx, p.category)
		if err != nil {
			return r, fmt.Errorf("category %s: %w", p.category, err)
		}
		r.params = vs
	}
	return r, nil
}

// serveMetrics exposes stats on addr until the returned stop function is called
func serveMetrics(addr string, stats *transport.Statistics, name string) (func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		transport.NewMetricsCollector(stats, name),
		collectors.NewGoCollector(),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	// surface immediate bind failures
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("metrics listener: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	logger.Info().Str("addr", addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("metrics shutdown")
		}
	}, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := OpenSession(ctx, monitorCategory != "")
	if err != nil {
		return err
	}
	defer s.Close()

	if metricsAddr != "" {
		stop, err := serveMetrics(metricsAddr, s.transport.Statistics(), transportName)
		if err != nil {
			return err
		}
		defer stop()
	}

	src := statusPoller{client: s.client, category: monitorCategory}
	m := initialModel(ctx, src, s.transport.Statistics(), s.info, monitorCategory, monitorInterval)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
