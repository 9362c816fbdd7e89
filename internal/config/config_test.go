// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package config

import (
	"testing"
	"time"
)

func TestEffectivePollInterval(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"zero clamps to floor", 0, MinPollInterval},
		{"negative clamps to floor", -time.Second, MinPollInterval},
		{"one millisecond clamps to floor", time.Millisecond, MinPollInterval},
		{"floor passes through", MinPollInterval, MinPollInterval},
		{"above floor passes through", 5 * time.Minute, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := SchedulerConfig{PollInterval: tt.in}
			if got := c.EffectivePollInterval(); got != tt.want {
				t.Errorf("EffectivePollInterval(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
