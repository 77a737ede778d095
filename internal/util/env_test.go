package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		def      bool
		expected bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"garbage", true, true},
		{"garbage", false, false},
	}
	for _, tc := range tests {
		t.Setenv("TEST_BOOL_ENV", tc.value)
		if got := ParseBoolEnv("TEST_BOOL_ENV", tc.def); got != tc.expected {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.expected)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{"", 15 * time.Second, 15 * time.Second},
		{"30s", 15 * time.Second, 30 * time.Second},
		{"2m", 15 * time.Second, 2 * time.Minute},
		{"not-a-duration", 15 * time.Second, 15 * time.Second},
	}
	for _, tc := range tests {
		t.Setenv("TEST_DURATION_ENV", tc.value)
		if got := ParseDurationEnv("TEST_DURATION_ENV", tc.def); got != tc.expected {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tc.value, got, tc.expected)
		}
	}
}
