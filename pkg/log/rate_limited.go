// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitedLogger passes messages to another Logger until a burst is used up,
// then at most one per interval. Messages over the limit are counted, so a
// caller that logs one line per table entry can report how many it held back.
type LimitedLogger struct {
	logger  Logger
	limit   *rate.Limiter
	dropped atomic.Int64
}

// NewLimitedLogger returns a LimitedLogger that writes the first burst
// messages to logger, then at most one message every interval.
func NewLimitedLogger(logger Logger, every time.Duration, burst int) *LimitedLogger {
	return &LimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), burst),
	}
}

func (l *LimitedLogger) allow() bool {
	if l.limit.Allow() {
		return true
	}
	l.dropped.Add(1)
	return false
}

// Debugf implements Logger.Debugf.
func (l *LimitedLogger) Debugf(format string, v ...any) {
	if l.allow() {
		l.logger.Debugf(format, v...)
	}
}

// Infof implements Logger.Infof.
func (l *LimitedLogger) Infof(format string, v ...any) {
	if l.allow() {
		l.logger.Infof(format, v...)
	}
}

// Warningf implements Logger.Warningf.
func (l *LimitedLogger) Warningf(format string, v ...any) {
	if l.allow() {
		l.logger.Warningf(format, v...)
	}
}

// IsLogging implements Logger.IsLogging. It doesn't consume the limit.
func (l *LimitedLogger) IsLogging(level Level) bool {
	return l.logger.IsLogging(level)
}

// Dropped returns the number of messages held back so far.
func (l *LimitedLogger) Dropped() int {
	return int(l.dropped.Load())
}
