package enforcement

import (
	"testing"
	"time"
)

func TestBanDurationEscalation(t *testing.T) {
	cases := []struct {
		offenses int64
		want     time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 30 * time.Minute},
		{2, 24 * time.Hour},
		{3, 24 * time.Hour},
		{100, 24 * time.Hour},
	}

	for _, tc := range cases {
		if got := BanDuration(tc.offenses); got != tc.want {
			t.Errorf("BanDuration(%d) = %v, want %v", tc.offenses, got, tc.want)
		}
	}
}

func TestBanDurationNeverShrinks(t *testing.T) {
	previous := time.Duration(0)
	for offenses := int64(0); offenses < 10; offenses++ {
		got := BanDuration(offenses)
		if got < previous {
			t.Fatalf("duration shrank at offense %d: %v < %v", offenses, got, previous)
		}
		previous = got
	}
}
