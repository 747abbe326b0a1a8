package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestRequired(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"Write changelog", false},
		{"", true},
		{"   \t", true},
	}
	for _, tt := range tests {
		err := Required("title", tt.value)
		if (err != nil) != tt.want {
			t.Errorf("Required(%q) error = %v, want error: %v", tt.value, err, tt.want)
		}
	}
}

func TestIsValidationWrapped(t *testing.T) {
	err := fmt.Errorf("creating task: %w", Required("title", ""))
	if !IsValidation(err) {
		t.Errorf("IsValidation(%v) = false, want true", err)
	}
	if IsValidation(errors.New("boom")) {
		t.Error("IsValidation(plain error) = true, want false")
	}
}

func TestSettingsWithDefaults(t *testing.T) {
	got := PomodoroSettings{WorkDuration: 50}.WithDefaults()
	want := PomodoroSettings{WorkDuration: 50, ShortBreakDuration: 5, LongBreakDuration: 15}
	if got != want {
		t.Errorf("WithDefaults() = %+v, want %+v", got, want)
	}
}

func TestEnumsValid(t *testing.T) {
	if !PriorityHigh.Valid() || Priority("urgent").Valid() {
		t.Error("Priority.Valid misclassified")
	}
	if !SessionLongBreak.Valid() || SessionType("nap").Valid() {
		t.Error("SessionType.Valid misclassified")
	}
}
