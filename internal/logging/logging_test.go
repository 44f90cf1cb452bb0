package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_LevelSelection(t *testing.T) {
	cases := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := New(Config{Level: tc.level}).GetLevel(); got != tc.want {
			t.Errorf("level %q: got %v, want %v", tc.level, got, tc.want)
		}
	}
}
