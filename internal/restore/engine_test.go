// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package restore

import "testing"

func TestUpsertClause(t *testing.T) {
	tests := []struct {
		name   string
		target *tableTarget
		cols   []string
		want   string
		wantOK bool
	}{
		{
			name:   "full upsert",
			target: &tableTarget{pkCols: []string{"id"}},
			cols:   []string{"id", "status", "total"},
			want:   ` ON CONFLICT ("id") DO UPDATE SET "status" = EXCLUDED."status", "total" = EXCLUDED."total"`,
			wantOK: true,
		},
		{
			name:   "composite key",
			target: &tableTarget{pkCols: []string{"order_id", "product_id"}},
			cols:   []string{"order_id", "product_id", "quantity"},
			want:   ` ON CONFLICT ("order_id", "product_id") DO UPDATE SET "quantity" = EXCLUDED."quantity"`,
			wantOK: true,
		},
		{
			name:   "key-only row does nothing on conflict",
			target: &tableTarget{pkCols: []string{"id"}},
			cols:   []string{"id"},
			want:   ` ON CONFLICT ("id") DO NOTHING`,
			wantOK: true,
		},
		{
			name:   "no primary key means plain insert",
			target: &tableTarget{},
			cols:   []string{"id", "status"},
			wantOK: false,
		},
		{
			name:   "missing key column means plain insert",
			target: &tableTarget{pkCols: []string{"id"}},
			cols:   []string{"status"},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := upsertClause(tt.target, tt.cols)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("clause = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInternalTablesExcluded(t *testing.T) {
	for _, name := range []string{"public.schema_migrations", "public.backup_records"} {
		if !internalTables[name] {
			t.Errorf("%s must never be loaded from a snapshot", name)
		}
	}
	if internalTables["public.orders"] {
		t.Error("business tables must not be excluded")
	}
}

func TestMaxCountersByPeriodIsNumericNotLexicographic(t *testing.T) {
	numbers := []string{
		"BKP-202601-0001",
		"BKP-202601-9999",
		"BKP-202601-10000", // widened counter must beat 9999
		"BKP-202512-0042",
		"INV-202601-99999", // other document type, ignored
		"BKP-202601",       // malformed, ignored
		"BKP-202601-x1",    // non-numeric counter, ignored
	}

	got := maxCountersByPeriod("BKP", numbers)

	want := map[string]int64{
		"202601": 10000,
		"202512": 42,
	}
	if len(got) != len(want) {
		t.Fatalf("maxima = %v, want %v", got, want)
	}
	for period, counter := range want {
		if got[period] != counter {
			t.Errorf("maxima[%s] = %d, want %d", period, got[period], counter)
		}
	}
}

func TestMaxCountersByPeriodEmptyInput(t *testing.T) {
	if got := maxCountersByPeriod("BKP", nil); len(got) != 0 {
		t.Errorf("maxima = %v, want empty", got)
	}
}
