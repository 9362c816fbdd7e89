// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package docnum

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		period  string
		counter int64
		want    string
	}{
		{name: "first of month", prefix: "BKP", period: "202609", counter: 1, want: "BKP-202609-0001"},
		{name: "padded", prefix: "BKP", period: "202609", counter: 42, want: "BKP-202609-0042"},
		{name: "four digits", prefix: "INV", period: "202512", counter: 9999, want: "INV-202512-9999"},
		{name: "overflow widens", prefix: "INV", period: "202601", counter: 12345, want: "INV-202601-12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.prefix, tt.period, tt.counter); got != tt.want {
				t.Errorf("Format(%q, %q, %d) = %q, want %q", tt.prefix, tt.period, tt.counter, got, tt.want)
			}
		})
	}
}
