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
	"log/syslog"

	log "github.com/sirupsen/logrus"
)

// syslogHook forwards logrus entries to the local syslog daemon, matching
// the reference implementation's default of logging through syslog unless
// told otherwise (-q).
type syslogHook struct {
	w *syslog.Writer
}

func newSyslogHook(priority syslog.Priority, tag string) (*syslogHook, error) {
	w, err := syslog.New(priority, tag)
	if err != nil {
		return nil, err
	}
	return &syslogHook{w: w}, nil
}

func (h *syslogHook) Levels() []log.Level { return log.AllLevels }

func (h *syslogHook) Fire(e *log.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	switch e.Level {
	case log.PanicLevel, log.FatalLevel:
		return h.w.Crit(line)
	case log.ErrorLevel:
		return h.w.Err(line)
	case log.WarnLevel:
		return h.w.Warning(line)
	case log.InfoLevel:
		return h.w.Info(line)
	default:
		return h.w.Debug(line)
	}
}
