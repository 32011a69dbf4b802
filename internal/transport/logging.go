// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"

	applog "playhead/internal/log"
)

var logLog = applog.New("LoggingTransport")

// LoggingTransport writes every message to the debug log as JSON.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	logLog.Infof("Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs data. It never fails; unmarshalable values are logged with %+v.
func (lt *LoggingTransport) Send(data any) error {
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		logLog.Debugf("%T %+v", data, data)
		return nil
	}
	logLog.Debugf("%T %s", data, raw)
	return nil
}

// Close is a no-op.
func (lt *LoggingTransport) Close() error {
	logLog.Debugf("Close called")
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
