package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" || info.Commit == "" || info.BuildTime == "" {
		t.Errorf("Get() has empty fields: %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestFillFromSettings(t *testing.T) {
	tests := []struct {
		name     string
		start    Info
		settings []debug.BuildSetting
		want     Info
	}{
		{
			name:  "unstamped build uses vcs data",
			start: Info{Commit: "unknown", BuildTime: "unknown"},
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
				{Key: "vcs.modified", Value: "true"},
			},
			want: Info{Commit: "0123456789ab", BuildTime: "2026-01-02T03:04:05Z", Modified: true},
		},
		{
			name:  "ldflags win",
			start: Info{Commit: "abc123", BuildTime: "yesterday"},
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "ffffffffffffffff"},
				{Key: "vcs.time", Value: "today"},
			},
			want: Info{Commit: "abc123", BuildTime: "yesterday"},
		},
		{
			name:  "no vcs",
			start: Info{Commit: "unknown", BuildTime: "unknown"},
			want:  Info{Commit: "unknown", BuildTime: "unknown"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.start
			fillFromSettings(&got, tt.settings)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, Version+" (") || !strings.Contains(s, runtime.Version()) {
		t.Errorf("String() = %q", s)
	}
}
