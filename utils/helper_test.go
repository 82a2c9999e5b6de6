package utils

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseRemoteTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-05T10:30:00Z", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{"2024-03-05T10:30:00", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"not-a-date", time.Time{}},
	}
	for _, tc := range cases {
		if got := ParseRemoteTime(tc.in); !got.Equal(tc.want) {
			t.Errorf("ParseRemoteTime(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"EUR", "USD", "EUR", "GBP", "USD"})
	want := []string{"EUR", "USD", "GBP"}
	if len(got) != len(want) {
		t.Fatalf("UniqueSlice = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UniqueSlice[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecimalFromNumber(t *testing.T) {
	if d := DecimalFromNumber(json.Number("12.34")); d.String() != "12.34" {
		t.Errorf("DecimalFromNumber(12.34) = %s", d)
	}
	if d := DecimalFromNumber(json.Number("")); !d.IsZero() {
		t.Errorf("DecimalFromNumber(empty) = %s", d)
	}
	if d := DecimalFromNumber(json.Number("garbage")); !d.IsZero() {
		t.Errorf("DecimalFromNumber(garbage) = %s", d)
	}
}

func TestDereferencePtr(t *testing.T) {
	v := 7
	if got := DereferencePtr(&v); got != 7 {
		t.Errorf("DereferencePtr(&7) = %d", got)
	}
	if got := DereferencePtr[int](nil); got != 0 {
		t.Errorf("DereferencePtr(nil) = %d", got)
	}
	if got := DereferencePtr(nil, 42); got != 42 {
		t.Errorf("DereferencePtr(nil, 42) = %d", got)
	}
}
