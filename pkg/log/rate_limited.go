// Copyright 2026 The gVisor Authors.
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

// rateLimitedLogger forwards statements to a Logger while its limiter has
// budget and counts the ones it drops. The count is appended to the next
// statement that is forwarded.
type rateLimitedLogger struct {
	// logger is the destination. If nil, each statement goes to the global
	// logger current at the time of the call, so a target installed by
	// SetTarget after construction is honoured.
	logger Logger
	limit  *rate.Limiter
	now    func() time.Time

	suppressed atomic.Uint64
}

func (rl *rateLimitedLogger) target() Logger {
	if rl.logger != nil {
		return rl.logger
	}
	return Log()
}

func (rl *rateLimitedLogger) logf(level Level, format string, v []any) {
	l := rl.target()
	if !l.IsLogging(level) {
		return
	}
	if !rl.limit.AllowN(rl.now(), 1) {
		rl.suppressed.Add(1)
		return
	}
	if n := rl.suppressed.Swap(0); n > 0 {
		format += " (%d similar messages suppressed)"
		v = append(v[:len(v):len(v)], n)
	}
	switch level {
	case Debug:
		l.Debugf(format, v...)
	case Info:
		l.Infof(format, v...)
	default:
		l.Warningf(format, v...)
	}
}

func (rl *rateLimitedLogger) Debugf(format string, v ...any) {
	rl.logf(Debug, format, v)
}

func (rl *rateLimitedLogger) Infof(format string, v ...any) {
	rl.logf(Info, format, v)
}

func (rl *rateLimitedLogger) Warningf(format string, v ...any) {
	rl.logf(Warning, format, v)
}

func (rl *rateLimitedLogger) IsLogging(level Level) bool {
	return rl.target().IsLogging(level)
}

// BasicRateLimitedLogger returns a Logger that logs to the global logger no
// more than once per the provided duration.
func BasicRateLimitedLogger(every time.Duration) Logger {
	return newRateLimitedLogger(nil, every, time.Now)
}

// RateLimitedLogger returns a Logger that logs to the provided logger no more
// than once per the provided duration.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return newRateLimitedLogger(logger, every, time.Now)
}

func newRateLimitedLogger(logger Logger, every time.Duration, now func() time.Time) *rateLimitedLogger {
	return &rateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
		now:    now,
	}
}
