package sequence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAllocateFormat(t *testing.T) {
	allocator := NewAllocator(NewMemoryCounter()).
		WithClock(fixedClock(time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)))

	tests := []struct {
		kind domain.RequestKind
		want string
	}{
		{domain.KindMAC, "MAC-2506-00001"},
		{domain.KindSupport, "TKT-2506-00001"},
	}
	for _, tc := range tests {
		got, err := allocator.Allocate(context.Background(), tc.kind)
		if err != nil {
			t.Fatalf("Allocate(%s): %v", tc.kind, err)
		}
		if got != tc.want {
			t.Errorf("Allocate(%s) = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestAllocateIncrementsPerKind(t *testing.T) {
	allocator := NewAllocator(NewMemoryCounter()).
		WithClock(fixedClock(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)))

	for i := 1; i <= 3; i++ {
		got, err := allocator.Allocate(context.Background(), domain.KindMAC)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		want := fmt.Sprintf("MAC-2506-%05d", i)
		if got != want {
			t.Errorf("allocation %d = %q, want %q", i, got, want)
		}
	}

	// The support sequence is independent of the MAC one.
	got, err := allocator.Allocate(context.Background(), domain.KindSupport)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != "TKT-2506-00001" {
		t.Errorf("support allocation = %q, want TKT-2506-00001", got)
	}
}

func TestAllocateMonthRollover(t *testing.T) {
	now := time.Date(2025, time.June, 30, 23, 59, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	allocator := NewAllocator(NewMemoryCounter()).WithClock(clock)

	first, err := allocator.Allocate(context.Background(), domain.KindMAC)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first != "MAC-2506-00001" {
		t.Fatalf("june allocation = %q", first)
	}

	now = time.Date(2025, time.July, 1, 0, 1, 0, 0, time.UTC)
	second, err := allocator.Allocate(context.Background(), domain.KindMAC)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second != "MAC-2507-00001" {
		t.Errorf("july allocation = %q, want MAC-2507-00001 (fresh run)", second)
	}
}

func TestMemoryCounterConcurrent(t *testing.T) {
	counter := NewMemoryCounter()
	const workers = 50

	var wg sync.WaitGroup
	seen := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := counter.Next(context.Background(), "MAC-2506")
			if err != nil {
				t.Errorf("Next: %v", err)
				return
			}
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for n := range seen {
		if unique[n] {
			t.Fatalf("duplicate sequence value %d", n)
		}
		unique[n] = true
	}
	if len(unique) != workers {
		t.Fatalf("got %d unique values, want %d", len(unique), workers)
	}
}
