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
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/timekit-io/phc2sys/internal/servo"
)

var stdoutIsTTY = term.IsTerminal(int(os.Stdout.Fd()))

func stateColor(s servo.State) *color.Color {
	switch s {
	case servo.StateLocked:
		return color.New(color.FgGreen)
	case servo.StateJump:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func colorizeState(s servo.State) string {
	if !stdoutIsTTY {
		return s.String()
	}
	return stateColor(s).Sprint(s.String())
}

// logSample prints a single-line reading, the verbose format phc2sys
// prints per update when no stats window is configured.
func (c *Clock) logSample(offsetNs, freqPPB, delayNs float64, hasDelay bool) {
	line := fmt.Sprintf("%s %s offset %10.0f ns freq %+9.0f ppb", c.sourceLabel, colorizeState(c.servoState), offsetNs, freqPPB)
	if hasDelay {
		line += fmt.Sprintf(" delay %8.0f ns", delayNs)
	}
	c.logger.Info(line)
}

// logSummary prints the mean/stddev/max-abs summary for a full stats
// window, matching the reference implementation's periodic stats line.
func (c *Clock) logSummary() {
	line := fmt.Sprintf(
		"%s %s rms %7.0f max %7.0f freq %+7.0f +/- %6.0f delay %6.0f +/- %6.0f",
		c.sourceLabel, colorizeState(c.servoState),
		c.stats.Offset.RMS(), c.stats.Offset.MaxAbs(),
		c.stats.Freq.Mean(), c.stats.Freq.Stddev(),
		c.stats.Delay.Mean(), c.stats.Delay.Stddev(),
	)
	c.logger.Info(line)
}
