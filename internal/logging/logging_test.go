package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level   string
		want    logrus.Level
		wantErr bool
	}{
		{"", logrus.InfoLevel, false},
		{"debug", logrus.DebugLevel, false},
		{"warn", logrus.WarnLevel, false},
		{"loud", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, err := New(Options{Level: tt.level, NoColors: true})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if log.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.want)
			}
			if log.ReportCaller != (tt.want >= logrus.DebugLevel) {
				t.Errorf("ReportCaller = %v", log.ReportCaller)
			}
		})
	}
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face-gate.log")

	log, err := New(Options{Level: "info", File: path, NoColors: true, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.WithField("session", "abc").Info("Session created")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "Session created") || !strings.Contains(string(data), "abc") {
		t.Errorf("log file = %q", data)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
	if log.Out == nil {
		t.Error("Discard() logger has no output")
	}
}
