package models

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from ProcessingStatus
		to   ProcessingStatus
		want bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusFailed, StatusProcessing, true},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
		{StatusCompleted, StatusPending, true},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
