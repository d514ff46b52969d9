package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateClampDay(t *testing.T) {
	tests := []struct {
		name string
		in   Date
		day  int
		want Date
	}{
		{"fits", NewDate(2024, 3, 10), 15, NewDate(2024, 3, 15)},
		{"leap february", NewDate(2024, 2, 1), 31, NewDate(2024, 2, 29)},
		{"non-leap february", NewDate(2023, 2, 1), 30, NewDate(2023, 2, 28)},
		{"thirty day month", NewDate(2024, 4, 1), 31, NewDate(2024, 4, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.ClampDay(tt.day); !got.Equal(tt.want) {
				t.Errorf("ClampDay(%d) = %v, want %v", tt.day, got, tt.want)
			}
		})
	}
}

func TestDateOfIgnoresClockAndZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	instant := time.Date(2024, 1, 31, 20, 0, 0, 0, time.UTC)

	if got := Today(instant, time.UTC); got.String() != "2024-01-31" {
		t.Errorf("Today(UTC) = %s, want 2024-01-31", got)
	}
	if got := Today(instant, tokyo); got.String() != "2024-02-01" {
		t.Errorf("Today(JST) = %s, want 2024-02-01", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if d.Year() != 2024 || d.Month() != 2 || d.Day() != 29 {
		t.Errorf("ParseDate() = %v", d)
	}
	if _, err := ParseDate("2023-02-29"); err == nil {
		t.Error("expected error for non-existent day")
	}
	if _, err := ParseDate("29/02/2024"); err == nil {
		t.Error("expected error for wrong layout")
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		D Date `json:"d"`
		E Date `json:"e"`
	}
	b, err := json.Marshal(wrapper{D: NewDate(2024, 1, 8)})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"d":"2024-01-08","e":null}` {
		t.Fatalf("Marshal = %s", b)
	}
	var w wrapper
	if err := json.Unmarshal(b, &w); err != nil {
		t.Fatal(err)
	}
	if !w.D.Equal(NewDate(2024, 1, 8)) || !w.E.IsZero() {
		t.Errorf("Unmarshal = %+v", w)
	}
}

func TestDateScan(t *testing.T) {
	var d Date
	if err := d.Scan("2024-05-31"); err != nil || d.String() != "2024-05-31" {
		t.Errorf("Scan(string) = %v, %v", d, err)
	}
	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Errorf("Scan(nil) = %v, %v", d, err)
	}
	if err := d.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}
	v, _ := Date{}.Value()
	if v != nil {
		t.Errorf("zero Value() = %v, want nil", v)
	}
}
