package availability

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestParseInstant(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name    string
		raw     string
		loc     *time.Location
		want    time.Time
		wantErr bool
	}{
		{"minute precision zulu", "2025-01-02T09:00Z", time.UTC, at("2025-01-02T09:00:00Z"), false},
		{"rfc3339", "2025-01-02T09:00:00Z", time.UTC, at("2025-01-02T09:00:00Z"), false},
		{"offset converted to utc", "2025-01-02T10:00:00+01:00", time.UTC, at("2025-01-02T09:00:00Z"), false},
		{"seconds truncated", "2025-01-02T09:00:42.5Z", time.UTC, at("2025-01-02T09:00:00Z"), false},
		{"zone-less read in reference location", "2025-01-02T10:00", berlin, at("2025-01-02T09:00:00Z"), false},
		{"space separated", "2025-01-02 09:00:00", time.UTC, at("2025-01-02T09:00:00Z"), false},
		{"surrounding whitespace", "  2025-01-02T09:00Z ", time.UTC, at("2025-01-02T09:00:00Z"), false},
		{"nil location means utc", "2025-01-02 09:00", nil, at("2025-01-02T09:00:00Z"), false},
		{"garbage", "not-a-time", time.UTC, time.Time{}, true},
		{"empty", "", time.UTC, time.Time{}, true},
		{"impossible date", "2025-02-30T09:00Z", time.UTC, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInstant(tt.raw, tt.loc)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Fatalf("ParseInstant(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecodeBatch(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"strings", `["a","b"]`, []string{"a", "b"}, false},
		{"empty list", `[]`, []string{}, false},
		{"non-string elements kept as raw json", `["a", 7, null]`, []string{"a", "7", "null"}, false},
		{"not json", `2025-01-02T09:00Z`, nil, true},
		{"object", `{"a":1}`, nil, true},
		{"null", `null`, nil, true},
		{"truncated", `["a",`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBatch(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBatch) {
					t.Fatalf("expected ErrInvalidBatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func spansEqual(a, b []Span) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}

func TestMergeInstants(t *testing.T) {
	tests := []struct {
		name     string
		instants []time.Time
		want     []Span
	}{
		{
			name:     "empty",
			instants: nil,
			want:     nil,
		},
		{
			name:     "contiguous run becomes one block",
			instants: []time.Time{at("2025-01-02T09:00:00Z"), at("2025-01-02T10:00:00Z"), at("2025-01-02T11:00:00Z")},
			want:     []Span{{at("2025-01-02T09:00:00Z"), at("2025-01-02T12:00:00Z")}},
		},
		{
			name:     "gap splits runs",
			instants: []time.Time{at("2025-01-02T09:00:00Z"), at("2025-01-02T13:00:00Z")},
			want: []Span{
				{at("2025-01-02T09:00:00Z"), at("2025-01-02T10:00:00Z")},
				{at("2025-01-02T13:00:00Z"), at("2025-01-02T14:00:00Z")},
			},
		},
		{
			name:     "duplicates collapse",
			instants: []time.Time{at("2025-01-02T09:00:00Z"), at("2025-01-02T09:00:00Z"), at("2025-01-02T10:00:00Z")},
			want:     []Span{{at("2025-01-02T09:00:00Z"), at("2025-01-02T11:00:00Z")}},
		},
		{
			name:     "runs do not cross midnight",
			instants: []time.Time{at("2025-01-02T23:00:00Z"), at("2025-01-03T00:00:00Z")},
			want: []Span{
				{at("2025-01-02T23:00:00Z"), at("2025-01-03T00:00:00Z")},
				{at("2025-01-03T00:00:00Z"), at("2025-01-03T01:00:00Z")},
			},
		},
		{
			name:     "off-grid instants only merge when exactly one quantum apart",
			instants: []time.Time{at("2025-01-02T09:30:00Z"), at("2025-01-02T10:30:00Z"), at("2025-01-02T11:00:00Z")},
			want: []Span{
				{at("2025-01-02T09:30:00Z"), at("2025-01-02T11:30:00Z")},
				{at("2025-01-02T11:00:00Z"), at("2025-01-02T12:00:00Z")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeInstants(tt.instants, time.UTC)
			if !spansEqual(got, tt.want) {
				t.Fatalf("MergeInstants() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeInstantsOrderIndependent(t *testing.T) {
	base := []time.Time{
		at("2025-01-02T08:00:00Z"),
		at("2025-01-02T09:00:00Z"),
		at("2025-01-02T10:00:00Z"),
		at("2025-01-02T14:00:00Z"),
		at("2025-01-02T15:00:00Z"),
		at("2025-01-03T09:00:00Z"),
	}
	want := MergeInstants(base, time.UTC)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 25; i++ {
		shuffled := append([]time.Time(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := MergeInstants(shuffled, time.UTC); !spansEqual(got, want) {
			t.Fatalf("permutation %v produced %v, want %v", shuffled, got, want)
		}
	}
	if len(want) != 3 {
		t.Fatalf("expected 3 spans, got %v", want)
	}
}

func TestMergeInstantsPartitionsByReferenceDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 04:00Z and 05:00Z are 23:00 and 00:00 in New York in January.
	instants := []time.Time{at("2025-01-03T04:00:00Z"), at("2025-01-03T05:00:00Z")}

	if got := MergeInstants(instants, time.UTC); len(got) != 1 {
		t.Fatalf("expected one span in UTC, got %v", got)
	}
	if got := MergeInstants(instants, ny); len(got) != 2 {
		t.Fatalf("expected split at New York midnight, got %v", got)
	}
}

func TestWeekRange(t *testing.T) {
	// Wednesday 2025-01-08
	from, to := WeekRange(at("2025-01-08T15:30:00Z"), time.UTC)
	if !from.Equal(at("2025-01-05T00:00:00Z")) || !to.Equal(at("2025-01-12T00:00:00Z")) {
		t.Fatalf("WeekRange = [%v, %v)", from, to)
	}

	// A Sunday is the first day of its own week.
	from, _ = WeekRange(at("2025-01-05T00:00:00Z"), time.UTC)
	if !from.Equal(at("2025-01-05T00:00:00Z")) {
		t.Fatalf("expected Sunday start, got %v", from)
	}
}
