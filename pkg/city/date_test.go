package city

import (
	"encoding/json"
	"testing"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-01")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if d != (Date{Year: 2024, Month: 1, Day: 1}) {
		t.Errorf("ParseDate() = %+v", d)
	}

	if _, err := ParseDate("01/02/2024"); err == nil {
		t.Error("ParseDate() should reject non-ISO input")
	}
}

func TestDateAddDays(t *testing.T) {
	tests := []struct {
		from string
		days int
		want string
	}{
		{"2024-01-01", 21, "2024-01-22"},
		{"2024-02-20", 10, "2024-03-01"}, // leap year
		{"2023-12-25", 30, "2024-01-24"},
		{"2024-03-01", -1, "2024-02-29"},
	}
	for _, tt := range tests {
		d, _ := ParseDate(tt.from)
		if got := d.AddDays(tt.days).String(); got != tt.want {
			t.Errorf("%s + %d = %s, want %s", tt.from, tt.days, got, tt.want)
		}
	}
}

func TestDateDaysUntil(t *testing.T) {
	a, _ := ParseDate("2024-01-01")
	b, _ := ParseDate("2024-01-22")
	if got := a.DaysUntil(b); got != 21 {
		t.Errorf("DaysUntil() = %d, want 21", got)
	}
	if got := b.DaysUntil(a); got != -21 {
		t.Errorf("DaysUntil() = %d, want -21", got)
	}
}

func TestDateJSON(t *testing.T) {
	d := Date{Year: 2024, Month: 1, Day: 22}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"2024-01-22"` {
		t.Errorf("Marshal() = %s", data)
	}

	var back Date
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("Unmarshal() = %v, want %v", back, d)
	}
}
