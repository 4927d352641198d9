/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command goespctl is the reference CLI for the driver: it opens the
// configured serial device, runs the AT engine, and exposes a handful of
// cobra subcommands plus an optional Prometheus/gin debug server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginsdk "github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	liblog "github.com/sirupsen/logrus"
	spfcbr "github.com/spf13/cobra"

	"github.com/sabouaram/goesp/atapi"
	"github.com/sabouaram/goesp/atconn"
	"github.com/sabouaram/goesp/atengine"
	"github.com/sabouaram/goesp/atevent"
	"github.com/sabouaram/goesp/config"
	"github.com/sabouaram/goesp/metrics"
	"github.com/sabouaram/goesp/port"
)

var cfgPath string

func main() {
	root := &spfcbr.Command{
		Use:   "goespctl",
		Short: "Control an ESP-AT radio over a serial port",
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a goespctl config file (yaml/json/toml)")

	root.AddCommand(newJoinCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rig bundles everything a subcommand needs once the serial port is open.
type rig struct {
	api    *atapi.API
	eng    *atengine.Engine
	conns  *atconn.Table
	coll   *metrics.Collector
	cancel context.CancelFunc
}

func openRig() (*rig, error) {
	cfg, cerr := config.Load(cfgPath)
	if cerr != nil {
		return nil, cerr
	}

	tty, err := openTTY(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	log := liblog.NewEntry(liblog.StandardLogger())
	conns := atconn.NewTable(cfg.MaxConnections)
	events := atevent.New(log)

	var coll *metrics.Collector
	if cfg.Features.MetricsEnabled {
		coll = metrics.New()
	}

	eng := atengine.New(tty, conns, events, cfg.CommandQueueDepth, log, coll)

	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)

	api := atapi.New(eng, conns, cfg)

	if _, err := api.Handshake(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("handshake: %w", err)
	}

	if cfg.Features.AutoReconnect {
		interval := cfg.Features.ReconnectInterval
		if interval == 0 {
			interval = config.ReconnectDefaultInterval
		}

		if err := api.ReconnectConfigure(ctx, interval, cfg.Features.ReconnectRetries); err != nil {
			cancel()
			return nil, fmt.Errorf("reconnect configure: %w", err)
		}
	}

	return &rig{api: api, eng: eng, conns: conns, coll: coll, cancel: cancel}, nil
}

func newJoinCommand() *spfcbr.Command {
	return &spfcbr.Command{
		Use:   "join <ssid> <password>",
		Short: "Associate with an access point",
		Args:  spfcbr.ExactArgs(2),
		RunE: func(cmd *spfcbr.Command, args []string) error {
			r, err := openRig()
			if err != nil {
				return err
			}
			defer r.cancel()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			return r.api.Join(ctx, args[0], args[1])
		},
	}
}

func newStatusCommand() *spfcbr.Command {
	return &spfcbr.Command{
		Use:   "status",
		Short: "Print the connection table",
		RunE: func(cmd *spfcbr.Command, args []string) error {
			r, err := openRig()
			if err != nil {
				return err
			}
			defer r.cancel()

			for i := 0; i < 8; i++ {
				s := r.conns.Slot(i)
				if s == nil {
					break
				}
				fmt.Printf("slot %d: active=%v closing=%v\n", i, s.HasStatus(atconn.StatusActive), s.HasStatus(atconn.StatusInClosing))
			}

			return nil
		},
	}
}

func newServeCommand() *spfcbr.Command {
	var addr string

	c := &spfcbr.Command{
		Use:   "serve",
		Short: "Keep the engine running and expose a debug/metrics HTTP server",
		RunE: func(cmd *spfcbr.Command, args []string) error {
			r, err := openRig()
			if err != nil {
				return err
			}
			defer r.cancel()

			reg := prometheus.NewRegistry()
			if r.coll != nil {
				r.coll.MustRegister(reg)
			}

			ginsdk.SetMode(ginsdk.ReleaseMode)
			router := ginsdk.New()
			router.GET("/metrics", ginsdk.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
			router.GET("/healthz", func(c *ginsdk.Context) {
				c.JSON(http.StatusOK, ginsdk.H{"status": "ok"})
			})

			srv := &http.Server{Addr: addr, Handler: router}

			go func() {
				_ = srv.ListenAndServe()
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return srv.Shutdown(shutCtx)
		},
	}

	c.Flags().StringVar(&addr, "listen", ":8080", "debug/metrics HTTP server listen address")

	return c
}
