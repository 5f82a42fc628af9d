package workload

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPartitionCounts(t *testing.T) {
	tests := []struct {
		name       string
		procs      int
		workers    int
		wantCounts []int
	}{
		{"even", 100, 4, []int{25, 25, 25, 25}},
		{"remainder to first", 10, 4, []int{3, 3, 2, 2}},
		{"single worker", 7, 1, []int{7}},
		{"more workers than procs", 2, 4, []int{1, 1, 0, 0}},
		{"one each", 3, 3, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges, err := Partition(tt.procs, tt.workers)
			if err != nil {
				t.Fatalf("Partition failed: %v", err)
			}

			got := make([]int, len(ranges))
			for i, r := range ranges {
				got[i] = r.Count
			}

			if !reflect.DeepEqual(got, tt.wantCounts) {
				t.Errorf("counts = %v, want %v", got, tt.wantCounts)
			}
		})
	}
}

func TestPartitionIDs(t *testing.T) {
	ranges, err := Partition(10, 4)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	want := []Range{
		{Worker: 0, First: 1, Count: 3},
		{Worker: 1, First: 4, Count: 3},
		{Worker: 2, First: 7, Count: 2},
		{Worker: 3, First: 9, Count: 2},
	}

	if !reflect.DeepEqual(ranges, want) {
		t.Errorf("ranges = %+v, want %+v", ranges, want)
	}
	if ranges[3].Last() != 10 {
		t.Errorf("last id = %d, want 10", ranges[3].Last())
	}
}

func TestPartitionInvalid(t *testing.T) {
	if _, err := Partition(0, 4); err == nil {
		t.Error("expected error for zero procedures")
	}
	if _, err := Partition(10, 0); err == nil {
		t.Error("expected error for zero workers")
	}
	if _, err := Partition(-1, -1); err == nil {
		t.Error("expected error for negative inputs")
	}
}

func TestPartitionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ranges cover 1..n exactly once", prop.ForAll(
		func(procs, workers int) bool {
			ranges, err := Partition(procs, workers)
			if err != nil || len(ranges) != workers {
				return false
			}

			next := uint64(1)
			total := 0
			for _, r := range ranges {
				if r.First != next {
					return false
				}
				next += uint64(r.Count)
				total += r.Count
			}

			return total == procs && next == uint64(procs)+1
		},
		gen.IntRange(1, 100000),
		gen.IntRange(1, 512),
	))

	properties.Property("sizes differ by at most one, larger first", prop.ForAll(
		func(procs, workers int) bool {
			ranges, err := Partition(procs, workers)
			if err != nil {
				return false
			}

			s := Summarize(ranges)
			if s.MaxPerWorker-s.MinPerWorker > 1 {
				return false
			}

			for i := 1; i < len(ranges); i++ {
				if ranges[i].Count > ranges[i-1].Count {
					return false
				}
			}

			return true
		},
		gen.IntRange(1, 100000),
		gen.IntRange(1, 512),
	))

	properties.Property("partitioning is deterministic", prop.ForAll(
		func(procs, workers int) bool {
			a, errA := Partition(procs, workers)
			b, errB := Partition(procs, workers)

			return errA == nil && errB == nil && reflect.DeepEqual(a, b)
		},
		gen.IntRange(1, 100000),
		gen.IntRange(1, 512),
	))

	properties.TestingRun(t)
}

func TestSummarize(t *testing.T) {
	ranges, err := Partition(10, 4)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	got := Summarize(ranges)
	want := Summary{Workers: 4, TotalRecords: 10, MinPerWorker: 2, MaxPerWorker: 3}

	if got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
	if Summarize(nil) != (Summary{}) {
		t.Error("empty partitioning should summarize to zero")
	}
}

func TestParseFill(t *testing.T) {
	for _, s := range []string{"zero", "random"} {
		if _, err := ParseFill(s); err != nil {
			t.Errorf("ParseFill(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseFill("ones"); err == nil {
		t.Error("expected error for unknown fill")
	}
}

func TestGeneratorSize(t *testing.T) {
	for _, size := range []int{0, 1, 1024} {
		for _, fill := range []Fill{FillZero, FillRandom} {
			g := NewGenerator(Config{StateSize: size, Fill: fill, Seed: 1}, 0)

			for i := 0; i < 3; i++ {
				if got := len(g.Next()); got != size {
					t.Errorf("%s/%d: state len = %d, want %d", fill, size, got, size)
				}
			}
		}
	}
}

func TestGeneratorZeroFill(t *testing.T) {
	g := NewGenerator(Config{StateSize: 64, Fill: FillZero}, 3)

	if !bytes.Equal(g.Next(), make([]byte, 64)) {
		t.Error("zero fill produced non-zero bytes")
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	cfg := Config{StateSize: 128, Fill: FillRandom, Seed: 42}

	a := NewGenerator(cfg, 2)
	b := NewGenerator(cfg, 2)

	for i := 0; i < 5; i++ {
		if !bytes.Equal(a.Next(), b.Next()) {
			t.Fatalf("state %d differs for the same seed and worker", i)
		}
	}

	other := NewGenerator(cfg, 3)
	if bytes.Equal(NewGenerator(cfg, 2).Next(), other.Next()) {
		t.Error("different workers produced identical random states")
	}
}
