// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package database

import (
	"strings"
	"testing"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple", input: "orders", want: `"orders"`},
		{name: "underscore prefix", input: "_internal", want: `"_internal"`},
		{name: "mixed case", input: "OrderItems", want: `"OrderItems"`},
		{name: "dollar sign", input: "tmp$1", want: `"tmp$1"`},
		{name: "empty", input: "", wantErr: true},
		{name: "leading digit", input: "1orders", wantErr: true},
		{name: "embedded quote", input: `orders"; DROP TABLE x; --`, wantErr: true},
		{name: "semicolon", input: "orders;", wantErr: true},
		{name: "space", input: "order items", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 64), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuoteIdentifier(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("QuoteIdentifier(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("QuoteIdentifier(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestQuoteQualified(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "qualified", input: "public.orders", want: `"public"."orders"`},
		{name: "unqualified defaults to public", input: "orders", want: `"public"."orders"`},
		{name: "custom schema", input: "shop.order_items", want: `"shop"."order_items"`},
		{name: "bad schema", input: `pub"lic.orders`, wantErr: true},
		{name: "bad table", input: "public.ord ers", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuoteQualified(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("QuoteQualified(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("QuoteQualified(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("QuoteQualified(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAdvisoryLockIDStable(t *testing.T) {
	a := AdvisoryLockID("backup")
	b := AdvisoryLockID("backup")
	if a != b {
		t.Errorf("AdvisoryLockID not stable: %d vs %d", a, b)
	}
	if AdvisoryLockID("backup") == AdvisoryLockID("healthcheck") {
		t.Error("distinct job names should yield distinct lock IDs")
	}
}
