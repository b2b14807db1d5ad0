package eventlog

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppend_SequencesPerOrg(t *testing.T) {
	log := New()

	a1 := log.Append("org-a", "message.created", nil)
	a2 := log.Append("org-a", "message.created", nil)
	b1 := log.Append("org-b", "message.created", nil)

	if a1.Seq != 1 || a2.Seq != 2 {
		t.Errorf("org-a seqs = %d, %d; want 1, 2", a1.Seq, a2.Seq)
	}
	if b1.Seq != 1 {
		t.Errorf("org-b first seq = %d, want 1 (independent of org-a)", b1.Seq)
	}
	if log.LatestSeq("org-a") != 2 || log.LatestSeq("org-b") != 1 {
		t.Errorf("LatestSeq: org-a=%d org-b=%d", log.LatestSeq("org-a"), log.LatestSeq("org-b"))
	}
}

func TestQuery_AfterSeq(t *testing.T) {
	log := New()
	for i := 1; i <= 10; i++ {
		log.Append("org-a", "e", i)
	}

	events, oldest := log.Query("org-a", 7, 0)
	if oldest != 1 {
		t.Errorf("oldestRetained = %d, want 1", oldest)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, e := range events {
		if e.Seq != uint64(8+i) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, 8+i)
		}
	}
}

func TestQuery_LimitAndEmpty(t *testing.T) {
	log := New()

	events, oldest := log.Query("org-a", 0, 10)
	if events != nil || oldest != 0 {
		t.Errorf("empty log query = %v, %d", events, oldest)
	}

	for i := 1; i <= 10; i++ {
		log.Append("org-a", "e", nil)
	}
	events, _ = log.Query("org-a", 0, 4)
	if len(events) != 4 || events[0].Seq != 1 || events[3].Seq != 4 {
		t.Errorf("limited query = %+v", events)
	}
}

func TestEviction_OldestFallsOff(t *testing.T) {
	log := New()
	total := MaxEventsPerOrg + 250
	for i := 0; i < total; i++ {
		log.Append("org-a", "e", nil)
	}

	events, oldest := log.Query("org-a", 0, 0)
	wantOldest := uint64(total - MaxEventsPerOrg + 1)
	if oldest != wantOldest {
		t.Errorf("oldestRetained = %d, want %d", oldest, wantOldest)
	}
	if len(events) != MaxEventsPerOrg {
		t.Errorf("retained %d events, want %d", len(events), MaxEventsPerOrg)
	}
	if events[0].Seq != wantOldest {
		t.Errorf("first retained seq = %d, want %d", events[0].Seq, wantOldest)
	}
	if last := events[len(events)-1].Seq; last != uint64(total) {
		t.Errorf("last retained seq = %d, want %d", last, total)
	}
}

func TestBuffer_GrowsWithUseNotUpFront(t *testing.T) {
	log := New()

	// A read-only touch must not allocate the full replay window.
	log.LatestSeq("org-a")
	if o := log.org("org-a"); cap(o.buf) >= MaxEventsPerOrg {
		t.Fatalf("untouched org pre-allocated %d entries", cap(o.buf))
	}

	for i := 0; i < 10; i++ {
		log.Append("org-a", "e", nil)
	}
	if o := log.org("org-a"); cap(o.buf) >= MaxEventsPerOrg {
		t.Errorf("10 appends allocated %d entries", cap(o.buf))
	}
	events, oldest := log.Query("org-a", 0, 0)
	if len(events) != 10 || oldest != 1 {
		t.Errorf("query after growth = %d events, oldest %d", len(events), oldest)
	}
}

func TestAppend_ConcurrentNoGapsNoDuplicates(t *testing.T) {
	log := New()
	const workers, perWorker = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				log.Append("org-a", "e", fmt.Sprintf("%d/%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	total := uint64(workers * perWorker)
	if got := log.LatestSeq("org-a"); got != total {
		t.Fatalf("LatestSeq = %d, want %d", got, total)
	}
	events, _ := log.Query("org-a", 0, 0)
	seen := make(map[uint64]bool, len(events))
	for _, e := range events {
		if seen[e.Seq] {
			t.Fatalf("duplicate seq %d", e.Seq)
		}
		seen[e.Seq] = true
	}
	for s := uint64(1); s <= total; s++ {
		if !seen[s] {
			t.Fatalf("missing seq %d", s)
		}
	}
}
