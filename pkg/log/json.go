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
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// levelNames are the JSON names of each Level.
var levelNames = [...]string{
	Warning: "warning",
	Info:    "info",
	Debug:   "debug",
}

// MarshalJSON implements json.Marshaler.MarshalJSON.
func (l Level) MarshalJSON() ([]byte, error) {
	if int(l) >= len(levelNames) {
		return nil, fmt.Errorf("unknown level %v", l)
	}
	return json.Marshal(levelNames[l])
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. Both the level
// name and its integer value are accepted.
func (l *Level) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		for i, n := range levelNames {
			if n == name {
				*l = Level(i)
				return nil
			}
		}
		return fmt.Errorf("unknown level %q", name)
	}
	v, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil || v >= uint64(len(levelNames)) {
		return fmt.Errorf("unknown level %s", b)
	}
	*l = Level(v)
	return nil
}

// jsonLog is one JSON log record.
type jsonLog struct {
	Time   time.Time      `json:"time"`
	Level  Level          `json:"level"`
	Caller string         `json:"caller"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

// JSONEmitter logs one JSON object per line.
type JSONEmitter struct {
	*Writer

	// Fields are attached to every record, for example the session that
	// produced it. May be nil.
	Fields map[string]any
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	b, err := json.Marshal(jsonLog{
		Time:   timestamp,
		Level:  level,
		Caller: callerOf(depth + 1),
		Msg:    fmt.Sprintf(format, v...),
		Fields: e.Fields,
	})
	if err != nil {
		// Fields hold a value encoding/json cannot represent.
		b, _ = json.Marshal(jsonLog{
			Time:   timestamp,
			Level:  level,
			Caller: callerOf(depth + 1),
			Msg:    fmt.Sprintf(format, v...) + " (bad fields: " + err.Error() + ")",
		})
	}
	e.Writer.Write(b)
}
