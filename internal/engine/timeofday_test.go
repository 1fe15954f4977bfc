package engine

import "testing"

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"08:00", 480, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"08:60", 0, true},
		{"8:00", 0, true},
		{"08-00", 0, true},
		{"", 0, true},
		{"garbage", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseTimeOfDay(%q): want error, got %v", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q): %v", tc.in, err)
			}
			if got.Minutes() != tc.want {
				t.Fatalf("ParseTimeOfDay(%q) = %d minutes, want %d", tc.in, got.Minutes(), tc.want)
			}
		})
	}
}

func TestTimeOfDayRoundTrip(t *testing.T) {
	for _, s := range []string{"00:00", "07:55", "13:05", "23:59"} {
		if got := MustTimeOfDay(s).String(); got != s {
			t.Fatalf("round trip %q -> %q", s, got)
		}
	}
}

func TestTimeOfDayAdd(t *testing.T) {
	cutoff := MustTimeOfDay("08:00").Add(15)
	if cutoff.String() != "08:15" {
		t.Fatalf("08:00 + 15m = %s, want 08:15", cutoff)
	}
}
