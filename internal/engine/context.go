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

package engine

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timekit-io/phc2sys/internal/leap"
	"github.com/timekit-io/phc2sys/internal/mgmt"
	"github.com/timekit-io/phc2sys/internal/metrics"
	"github.com/timekit-io/phc2sys/internal/phc"
	"github.com/timekit-io/phc2sys/internal/servo"
	"github.com/timekit-io/phc2sys/internal/stats"
)

// pmcUpdateInterval bounds how often the management channel is consulted
// for a fresh UTC offset / leap status, matching PMC_UPDATE_INTERVAL in
// the reference implementation.
const pmcUpdateInterval = 60 * time.Second

// maxFreqPPBLimit caps the servo's frequency output regardless of what the
// destination clock's hardware reports, matching the reference
// implementation's hardcoded max_ppb (it never consults the clock's own
// adjustment range when creating the servo).
const maxFreqPPBLimit = 512000

// SourceMode selects which measurement loop drives the engine.
type SourceMode int

// Modes this engine supports.
const (
	ModePPS SourceMode = iota
	ModeSysoff
	ModePHC
)

// Config carries everything Boot needs to assemble a running Clock.
type Config struct {
	// Destination clock: either a PHC device path or "" for CLOCK_REALTIME.
	DstDevice string

	// Source: SrcDevice or SrcIface names a PHC source; PPSDevice selects a
	// PPS source, in which case SrcDevice or SrcIface, if set, names the
	// companion PHC that resolves the whole second of each edge.
	SrcDevice string
	SrcIface  string
	PPSDevice string

	Readings   int           // PHC readings to bracket per sample
	UpdateRate time.Duration // sleep between samples in the PHC/sysoff loops

	Kp, Ki             float64
	StepThreshold      int64
	FirstStepThreshold int64

	FixedUTCOffset  float64 // seconds, used when not consulting a management channel
	WaitForLock     bool
	StepInsteadOfKernelLeap bool // apply leap via servo step, not kernel flag (-x)

	StatsWindow int // 0 disables periodic summaries; log every sample instead

	PMCAddress string // "" means /var/run/phc2sys with WaitForLock, else no management channel

	Metrics *metrics.Registry // nil disables metrics
	Logger  *log.Entry
}

// Clock is the running synchronization context: one destination clock
// steered from one source, with its servo, stats, leap tracking and
// (optionally) management channel state all bundled together.
type Clock struct {
	dst    ClockAdj
	dstDev *phc.Device // non-nil iff dst is a PHC, needed for direct ioctl reads

	// localTime reads whichever clock dst actually is, for bracketing a
	// PHC read against it: dstDev.Time for a PHC destination, or
	// phc.Realtime{}.Time for CLOCK_REALTIME. Set once in Boot so callers
	// never need to branch on dstDev being nil.
	localTime func() (time.Time, error)

	src      *phc.Device // non-nil in PHC/sysoff modes
	pps      *phc.PPSSource
	mode     SourceMode
	readings int
	rate     time.Duration

	servo             *servo.PI
	servoState        servo.State
	sourceLabel       string
	syncOffset        float64
	syncOffsetDir     int
	leapSet           bool
	kernelLeap        bool
	leapTracker       *leap.Tracker

	pmc           *mgmt.Client
	pmcLastUpdate time.Time
	havePmcUpdate bool

	stats   *stats.Window
	metrics *metrics.Registry
	logger  *log.Entry
}

// Boot performs the full startup sequence: opens the destination and
// source clocks, primes the servo from the clock's free-running frequency,
// clears any stale kernel leap flag, optionally blocks until an external
// PTP daemon reports its port locked, and computes the direction in which
// a fixed sync offset should be applied.
func Boot(cfg Config) (*Clock, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	dst, dstDev, err := openDestination(cfg.DstDevice)
	if err != nil {
		return nil, fmt.Errorf("opening destination clock: %w", err)
	}

	localTime := phc.Realtime{}.Time
	if dstDev != nil {
		localTime = dstDev.Time
	}

	c := &Clock{
		dst:        dst,
		dstDev:     dstDev,
		localTime:  localTime,
		readings:   cfg.Readings,
		rate:       cfg.UpdateRate,
		kernelLeap: !cfg.StepInsteadOfKernelLeap,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
	if cfg.Readings <= 0 {
		c.readings = 5
	}

	switch {
	case cfg.PPSDevice != "":
		c.mode = ModePPS
		c.pps, err = phc.OpenPPS(cfg.PPSDevice)
		if err != nil {
			return nil, err
		}
		c.sourceLabel = "pps"
		if cfg.SrcDevice != "" || cfg.SrcIface != "" {
			srcPath := cfg.SrcDevice
			if srcPath == "" {
				srcPath, err = phc.DeviceFromIface(cfg.SrcIface)
				if err != nil {
					return nil, fmt.Errorf("resolving PHC for interface %s: %w", cfg.SrcIface, err)
				}
			}
			c.src, err = phc.Open(srcPath)
			if err != nil {
				return nil, err
			}
		} else {
			// no PHC backing the PPS signal: a fixed sync offset makes no
			// sense without a reference clock to apply it to
			c.syncOffsetDir = 0
		}
	default:
		srcPath := cfg.SrcDevice
		if srcPath == "" && cfg.SrcIface != "" {
			srcPath, err = phc.DeviceFromIface(cfg.SrcIface)
			if err != nil {
				return nil, fmt.Errorf("resolving PHC for interface %s: %w", cfg.SrcIface, err)
			}
		}
		if srcPath == "" {
			return nil, fmt.Errorf("no source configured: need -s, -i or -d")
		}
		c.src, err = phc.Open(srcPath)
		if err != nil {
			return nil, err
		}
		c.sourceLabel = srcPath
		if isRealtime(dst) {
			c.mode = ModeSysoff
		} else {
			c.mode = ModePHC
		}
	}

	if cfg.StatsWindow > 0 {
		c.stats = stats.NewWindow(cfg.StatsWindow)
	}

	// Clear any leap second armed on a previous run before we start
	// steering; a stale flag from a crash would otherwise silently step
	// the clock an extra second.
	if err := c.dst.SetLeap(0); err != nil {
		logger.WithError(err).Warn("failed to clear pending leap second on destination clock")
	}

	if cfg.WaitForLock || cfg.PMCAddress != "" {
		pmcAddr := cfg.PMCAddress
		if pmcAddr == "" {
			pmcAddr = "/var/run/phc2sys"
		}
		c.pmc, err = mgmt.Dial(pmcAddr, cfg.WaitForLock, cfg.FixedUTCOffset == 0)
		if err != nil {
			return nil, fmt.Errorf("connecting to management socket %s: %w", pmcAddr, err)
		}
	}

	if cfg.WaitForLock {
		if err := c.waitForLock(); err != nil {
			return nil, err
		}
	}

	forcedSyncOffset := cfg.FixedUTCOffset != 0
	if c.mode == ModePPS && c.src == nil {
		c.syncOffsetDir = 0
	} else if forcedSyncOffset {
		c.syncOffset = cfg.FixedUTCOffset
		c.syncOffsetDir = -1
	} else if c.pmc == nil {
		c.syncOffsetDir = 0
	} else {
		c.syncOffsetDir = syncOffsetDirection(c.src, dst)
	}
	if c.pmc != nil && (forcedSyncOffset || c.syncOffsetDir == 0) {
		c.pmc.Close()
		c.pmc = nil
	}

	tracker, err := leap.NewTracker("")
	if err != nil {
		logger.WithError(err).Warn("failed to load leap second table, leap handling disabled")
	}
	c.leapTracker = tracker

	// read-then-reassert idempotence: some PHC drivers reset frequency to
	// zero if it isn't touched for a while, so make sure the current value
	// actually sticks before the servo starts adjusting it. The read may
	// silently fail (e.g. the clock hasn't reached TIME_OK yet, which is
	// the common case for an unsynchronized CLOCK_REALTIME at startup) and
	// return 0; that's fine, reassert whatever came back either way.
	freq, err := c.dst.FrequencyPPB()
	if err != nil {
		logger.WithError(err).Debug("destination clock frequency read reported a non-nominal state")
	}
	if err := c.dst.AdjFreqPPB(freq); err != nil {
		return nil, fmt.Errorf("reasserting destination clock frequency: %w", err)
	}

	piCfg := servo.DefaultPICfg()
	sCfg := servo.DefaultConfig()
	sCfg.StepThreshold = cfg.StepThreshold
	sCfg.FirstStepThreshold = cfg.FirstStepThreshold
	sCfg.FirstUpdate = cfg.FirstStepThreshold > 0
	if cfg.Kp > 0 {
		piCfg.KpScale = cfg.Kp
	}
	if cfg.Ki > 0 {
		piCfg.KiScale = cfg.Ki
	}
	c.servo = servo.New(sCfg, piCfg, -freq)
	c.servo.SetMaxFreq(maxFreqPPBLimit)
	c.servo.SyncInterval(1)

	return c, nil
}

func openDestination(device string) (ClockAdj, *phc.Device, error) {
	if device == "" || strings.EqualFold(device, "CLOCK_REALTIME") {
		return phc.Realtime{}, nil, nil
	}
	dev, err := phc.Open(device)
	if err != nil {
		return nil, nil, err
	}
	return dev, dev, nil
}

// syncOffsetDirection decides the sign to apply a fixed UTC/TAI-style sync
// offset with, based on whether the source and destination are the
// realtime clock or a PHC, mirroring the table in the reference
// implementation's main().
func syncOffsetDirection(src *phc.Device, dst ClockAdj) int {
	srcIsRealtime := src == nil
	dstIsRealtime := isRealtime(dst)
	switch {
	case srcIsRealtime && !dstIsRealtime:
		return -1
	case !srcIsRealtime && dstIsRealtime:
		return 1
	default:
		return 0
	}
}

func (c *Clock) waitForLock() error {
	for {
		done, err := c.pmc.Poll(1000)
		if err != nil {
			return fmt.Errorf("waiting for source port to lock: %w", err)
		}
		if done && c.pmc.PortLocked {
			return nil
		}
		if !done {
			c.logger.Info("waiting for ptp4l...")
		}
	}
}

// Close releases every open device and socket the clock holds.
func (c *Clock) Close() {
	if c.dstDev != nil {
		c.dstDev.Close()
	}
	if c.src != nil {
		c.src.Close()
	}
	if c.pps != nil {
		c.pps.Close()
	}
	if c.pmc != nil {
		c.pmc.Close()
	}
}
