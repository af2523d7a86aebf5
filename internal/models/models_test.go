package models

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Role
		wantErr bool
	}{
		{name: "owner canonical", in: "owner", want: RoleOwner},
		{name: "claimant canonical", in: "claimant", want: RoleClaimant},
		{name: "legacy property manager", in: "property_manager", want: RoleOwner},
		{name: "legacy tenant", in: " Tenant ", want: RoleClaimant},
		{name: "unknown tag", in: "admin", wantErr: true},
		{name: "empty tag", in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error for %q", tt.name, tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: ParseRole(%q)=%q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestViolationFullMessage(t *testing.T) {
	var vs Violations
	vs.Add("end_time", "must be after start time")
	vs.Add("time_block_id", "has already been taken")
	vs.AddBase("This time slot overlaps with an existing availability")

	got := vs.FullMessages()
	want := []string{
		"End time must be after start time",
		"Time block has already been taken",
		"This time slot overlaps with an existing availability",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %q, want %q", i, got[i], want[i])
		}
	}

	if vs[0].Field != "end_time" || vs[2].Field != "" {
		t.Errorf("unexpected fields %q, %q", vs[0].Field, vs[2].Field)
	}
}

func TestResultSuccess(t *testing.T) {
	var r Result
	if !r.Success() {
		t.Fatal("empty result should be successful")
	}
	r.AddError("boom")
	if r.Success() {
		t.Fatal("result with errors should not be successful")
	}
	if r.ErrorsSentence() != "boom" {
		t.Fatalf("unexpected sentence %q", r.ErrorsSentence())
	}
}

func TestTimeBlockOverlaps(t *testing.T) {
	base := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	a := &TimeBlock{StartTime: base, EndTime: base.Add(2 * Quantum)}

	tests := []struct {
		name  string
		other *TimeBlock
		want  bool
	}{
		{name: "touching end", other: &TimeBlock{StartTime: base.Add(2 * Quantum), EndTime: base.Add(3 * Quantum)}, want: false},
		{name: "touching start", other: &TimeBlock{StartTime: base.Add(-Quantum), EndTime: base}, want: false},
		{name: "inside", other: &TimeBlock{StartTime: base.Add(Quantum), EndTime: base.Add(2 * Quantum)}, want: true},
		{name: "straddling start", other: &TimeBlock{StartTime: base.Add(-Quantum), EndTime: base.Add(Quantum)}, want: true},
	}
	for _, tt := range tests {
		if got := a.Overlaps(tt.other); got != tt.want {
			t.Errorf("%s: Overlaps()=%v, want %v", tt.name, got, tt.want)
		}
	}
}
