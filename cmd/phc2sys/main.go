/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"log/syslog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"

	"github.com/timekit-io/phc2sys/internal/engine"
	"github.com/timekit-io/phc2sys/internal/metrics"
	"github.com/timekit-io/phc2sys/internal/version"
)

func main() {
	var (
		dstDevice   string
		srcDevice   string
		srcIface    string
		ppsDevice   string
		pmcAddress  string
		waitForLock bool
		fixedOffset float64
		stepThresh  int64
		firstStep   int64
		kp, ki      float64
		readings    int
		rate        int
		statsWindow int
		stepInstead bool
		logLevel    int
		printStdout bool
		noSyslog    bool
		printVer    bool
		metricsAddr string
		pprofAddr   string
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "phc2sys synchronizes a PTP hardware clock to another clock or to the system clock\n\nFlags:\n")
		flag.PrintDefaults()
	}

	flag.StringVar(&dstDevice, "c", "", "destination clock device, empty or CLOCK_REALTIME for the system clock")
	flag.StringVar(&srcDevice, "s", "", "source clock device")
	flag.StringVar(&srcIface, "i", "", "network interface whose PHC is the source clock")
	flag.StringVar(&ppsDevice, "d", "", "PPS source device")
	flag.StringVar(&pmcAddress, "z", "", "management socket address of a locally running PTP daemon")
	flag.BoolVar(&waitForLock, "w", false, "wait for the source PTP daemon's port to reach a locked state before starting")
	flag.Float64Var(&fixedOffset, "O", 0, "fixed offset in seconds to add between the source and destination clocks")
	flag.Int64Var(&stepThresh, "S", 0, "step threshold in nanoseconds; 0 disables stepping after the first update")
	flag.Int64Var(&firstStep, "F", 20000, "step threshold in nanoseconds applied only to the first update")
	flag.Float64Var(&kp, "P", 0, "servo proportional constant, 0 uses the default")
	flag.Float64Var(&ki, "I", 0, "servo integral constant, 0 uses the default")
	flag.IntVar(&readings, "N", 5, "number of source clock readings per sample; the one with the shortest bracket is used")
	flag.IntVar(&rate, "R", 1, "destination clock update rate in Hz")
	flag.IntVar(&statsWindow, "u", 0, "number of updates to summarize per log line, 0 logs every update")
	flag.BoolVar(&stepInstead, "x", false, "apply leap seconds by stepping the clock through the servo instead of the kernel flag")
	flag.IntVar(&logLevel, "l", 6, "syslog priority level (0-7)")
	flag.BoolVar(&printStdout, "m", false, "print messages to stdout")
	flag.BoolVar(&noSyslog, "q", false, "do not send messages to syslog")
	flag.BoolVar(&printVer, "v", false, "print version and exit")
	flag.StringVar(&metricsAddr, "metricsaddr", "", "address to serve Prometheus metrics on, empty disables it")
	flag.StringVar(&pprofAddr, "pprofaddr", "", "address to serve pprof profiles on, empty disables it")
	flag.Parse()

	if printVer {
		fmt.Println(version.Version)
		return
	}

	// map the syslog priority onto the nearest logrus level
	switch {
	case logLevel <= 2:
		log.SetLevel(log.FatalLevel)
	case logLevel == 3:
		log.SetLevel(log.ErrorLevel)
	case logLevel == 4:
		log.SetLevel(log.WarnLevel)
	case logLevel >= 7:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
	if printStdout {
		log.SetOutput(os.Stdout)
	}
	if !noSyslog {
		hook, err := newSyslogHook(syslog.LOG_DAEMON, "phc2sys")
		if err != nil {
			log.WithError(err).Warn("failed to connect to syslog, logging to stderr only")
		} else {
			log.AddHook(hook)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg *metrics.Registry
	if metricsAddr != "" {
		reg = metrics.New()
		reg.ServeBackground(ctx, metricsAddr)
	}
	if pprofAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		go func() {
			if err := http.ListenAndServe(pprofAddr, mux); err != nil {
				log.WithError(err).Warn("pprof server exited")
			}
		}()
	}

	var updateRate time.Duration
	if rate > 0 {
		updateRate = time.Second / time.Duration(rate)
	}

	cfg := engine.Config{
		DstDevice:               dstDevice,
		SrcDevice:               srcDevice,
		SrcIface:                srcIface,
		PPSDevice:               ppsDevice,
		Readings:                readings,
		UpdateRate:              updateRate,
		Kp:                      kp,
		Ki:                      ki,
		StepThreshold:           stepThresh,
		FirstStepThreshold:      firstStep,
		FixedUTCOffset:          fixedOffset,
		WaitForLock:             waitForLock,
		StepInsteadOfKernelLeap: stepInstead,
		StatsWindow:             statsWindow,
		PMCAddress:              pmcAddress,
		Metrics:                 reg,
		Logger:                  log.NewEntry(log.StandardLogger()),
	}

	clk, err := engine.Boot(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}
	defer clk.Close()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Debug("failed to notify systemd")
	} else if !ok {
		log.Debug("systemd notification socket not available")
	}

	if err := clk.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("sync loop exited")
	}
}
