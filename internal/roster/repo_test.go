package roster

import (
	"testing"
	"time"
)

func TestParseStudyDays(t *testing.T) {
	tests := []struct {
		in      string
		want    []time.Weekday
		wantErr bool
	}{
		{"1,2,3,4,5", []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, false},
		{"0", []time.Weekday{time.Sunday}, false},
		{" 1 , 6 ", []time.Weekday{time.Monday, time.Saturday}, false},
		{"", nil, false},
		{"7", nil, true},
		{"-1", nil, true},
		{"mon", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseStudyDays(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseStudyDays(%q): want error, got %v", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseStudyDays(%q): %v", tc.in, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("parseStudyDays(%q) = %v, want %v", tc.in, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("parseStudyDays(%q) = %v, want %v", tc.in, got, tc.want)
				}
			}
		})
	}
}
