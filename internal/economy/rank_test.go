package economy

import "testing"

func TestRankBounds(t *testing.T) {
	table := NewRankTable(100_000, 1_000_000, 10_000_000)

	tests := []struct {
		total int64
		want  string
	}{
		{total: 0, want: "common"},
		{total: 99_999, want: "common"},
		{total: 100_000, want: "notable"},
		{total: 999_999, want: "notable"},
		{total: 1_000_000, want: "elite"},
		{total: 9_999_999, want: "elite"},
		{total: 10_000_000, want: "transcendent"},
		{total: 1 << 40, want: "transcendent"},
	}
	for _, tc := range tests {
		if got := table.Rank(tc.total); got != tc.want {
			t.Fatalf("total=%d got=%q want=%q", tc.total, got, tc.want)
		}
	}
}

func TestRankEmptyTable(t *testing.T) {
	var table RankTable
	if got := table.Rank(500); got != "" {
		t.Fatalf("empty table returned %q", got)
	}
}
