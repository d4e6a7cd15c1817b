//
// Copyright (C) 2026 ThreadFlow Authors. All rights reserved.
//
// threadflow is licensed under the Apache License Version 2.0.
//
//

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{"debug", LevelDebug, zapcore.DebugLevel},
		{"info", LevelInfo, zapcore.InfoLevel},
		{"warn", LevelWarn, zapcore.WarnLevel},
		{"error", LevelError, zapcore.ErrorLevel},
		{"fatal", LevelFatal, zapcore.FatalLevel},
		{"unknown falls back to info", "verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLevel(tt.level)
			assert.Equal(t, tt.want, zapLevel.Level())
		})
	}
	SetLevel(LevelInfo)
}

func TestPackageHelpersDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Debugf("debug %d", 1)
		Infof("info %s", "x")
		Warn("warn")
		Errorf("error %v", assert.AnError)
	})
}
