package rcon

import (
	"sync"
	"testing"
)

func TestSequenceStartsAtOne(t *testing.T) {
	s := NewSequence()
	for want := int32(1); want <= 100; want++ {
		if got := s.Advance(); got != want {
			t.Fatalf("Advance() = %d, want %d", got, want)
		}
	}
}

func TestSequenceConcurrentUnique(t *testing.T) {
	s := NewSequence()
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[int32]bool, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int32, 0, perWorker)
			prev := int32(0)
			for j := 0; j < perWorker; j++ {
				id := s.Advance()
				if id <= prev {
					t.Errorf("non-increasing id %d after %d", id, prev)
				}
				prev = id
				local = append(local, id)
			}
			mu.Lock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("got %d unique ids, want %d", len(seen), workers*perWorker)
	}
	if next := s.Advance(); next != workers*perWorker+1 {
		t.Fatalf("next id = %d, want %d", next, workers*perWorker+1)
	}
}
