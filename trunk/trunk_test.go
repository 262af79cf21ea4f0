package trunk

import "testing"

func TestCICRoundTrip(t *testing.T) {
	for multiplex := 0; multiplex < 8; multiplex++ {
		for timeslot := 1; timeslot <= 30; timeslot++ {
			cic := CICEncode(multiplex, timeslot)
			gotMx, gotTs := CICDecode(cic)
			if gotMx != multiplex || gotTs != timeslot {
				t.Fatalf("CIC round trip mismatch: mx=%d ts=%d -> cic=%#x -> mx=%d ts=%d",
					multiplex, timeslot, cic, gotMx, gotTs)
			}
		}
	}
}

func TestEndpointTimeslotRoundTrip(t *testing.T) {
	for multiplex := 0; multiplex < 8; multiplex++ {
		for timeslot := 1; timeslot <= 30; timeslot++ {
			endpoint := TimeslotToEndpoint(multiplex, timeslot)
			gotMx, gotTs := EndpointToTimeslot(endpoint)
			if gotMx != multiplex || gotTs != timeslot {
				t.Fatalf("endpoint round trip mismatch: mx=%d ts=%d -> endpoint=%d -> mx=%d ts=%d",
					multiplex, timeslot, endpoint, gotMx, gotTs)
			}
		}
	}
}

func TestNumberMultiplexes(t *testing.T) {
	cases := map[int]int{32: 1, 33: 2, 64: 2, 65: 3, 1: 1}
	for max, want := range cases {
		if got := NumberMultiplexes(max); got != want {
			t.Errorf("NumberMultiplexes(%d) = %d, want %d", max, got, want)
		}
	}
}

func TestAllocateFreshBSCGivesFirstFreeID(t *testing.T) {
	tr := New(32)
	bsc := NewBSC("bts0", tr, 32)

	got, err := bsc.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != 0x0001 {
		t.Fatalf("first allocation = %#x, want 0x0001", got)
	}
	if !bsc.InUse(got) {
		t.Fatalf("endpoint %#x not marked in-use after allocation", got)
	}
}

func TestAllocateSkipsTimeslotZeroAndThirtyOne(t *testing.T) {
	tr := New(64)
	bsc := NewBSC("bts0", tr, 64)

	seen := map[int]bool{}
	for i := 0; i < 60; i++ {
		endpoint, err := bsc.Allocate()
		if err != nil {
			break
		}
		_, timeslot := EndpointToTimeslot(endpoint)
		if timeslot == 0 || timeslot == 0x1f {
			t.Fatalf("allocator handed out reserved timeslot %d (endpoint %#x)", timeslot, endpoint)
		}
		if seen[endpoint] {
			t.Fatalf("endpoint %#x handed out twice before any free", endpoint)
		}
		seen[endpoint] = true
	}
}

func TestAllocateExhaustion(t *testing.T) {
	tr := New(2)
	bsc := NewBSC("bts0", tr, 2)

	first, err := bsc.Allocate()
	if err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	second, err := bsc.Allocate()
	if err != nil {
		t.Fatalf("second Allocate: %v", err)
	}
	if first == second {
		t.Fatalf("allocator returned the same endpoint twice: %#x", first)
	}

	if _, err := bsc.Allocate(); err != ErrAllocatorFull {
		t.Fatalf("third Allocate on a 2-endpoint BSC = %v, want ErrAllocatorFull", err)
	}
}

func TestFreeMakesEndpointEligibleAgain(t *testing.T) {
	tr := New(2)
	bsc := NewBSC("bts0", tr, 2)

	first, _ := bsc.Allocate()
	_, _ = bsc.Allocate()

	bsc.Free(first)
	if bsc.InUse(first) {
		t.Fatalf("endpoint %#x still marked in-use after Free", first)
	}

	got, err := bsc.Allocate()
	if err != nil {
		t.Fatalf("Allocate after Free: %v", err)
	}
	if got != first {
		t.Fatalf("Allocate after Free returned %#x, want the freed endpoint %#x", got, first)
	}
}

func TestPendingTableInvariant(t *testing.T) {
	tr := New(4)
	bsc := NewBSC("bts0", tr, 4)

	if !tr.PendingAt(1).Empty() {
		t.Fatalf("fresh pending slot should be empty")
	}

	tr.SetPending(1, "42", StateCRCX, bsc)
	p := tr.PendingAt(1)
	if p.Empty() || p.TransactionID != "42" || p.State != StateCRCX || p.BSC != bsc {
		t.Fatalf("SetPending did not record expected state: %+v", p)
	}

	tr.ClearPending(1)
	if !tr.PendingAt(1).Empty() {
		t.Fatalf("pending slot not empty after ClearPending")
	}
}

func TestFindByTransactionFirstMatchWins(t *testing.T) {
	tr := New(4)
	bsc := NewBSC("bts0", tr, 4)

	tr.SetPending(1, "7", StateMDCX, bsc)
	tr.SetPending(2, "7", StateMDCX, bsc)

	if got := tr.FindByTransaction(bsc, "7"); got != 1 {
		t.Fatalf("FindByTransaction = %d, want 1 (first match)", got)
	}
	if got := tr.FindByTransaction(bsc, "missing"); got != 0 {
		t.Fatalf("FindByTransaction for unknown id = %d, want 0", got)
	}
}

func TestReleaseAllClearsStatusArray(t *testing.T) {
	tr := New(4)
	bsc := NewBSC("bts0", tr, 4)

	a, _ := bsc.Allocate()
	bsc.Allocate()

	bsc.ReleaseAll()
	if bsc.Initialized() {
		t.Fatal("ReleaseAll should leave the BSC uninitialized")
	}
	if bsc.InUse(a) {
		t.Fatal("ReleaseAll should clear every in-use bit")
	}

	got, err := bsc.Allocate()
	if err != nil {
		t.Fatalf("Allocate after ReleaseAll: %v", err)
	}
	if got != 0x0001 {
		t.Fatalf("first allocation after ReleaseAll = %#x, want 0x0001", got)
	}
}

func TestFreeAllForBSC(t *testing.T) {
	tr := New(4)
	a := NewBSC("a", tr, 4)
	b := NewBSC("b", tr, 4)

	tr.SetPending(1, "1", StateCRCX, a)
	tr.SetPending(2, "2", StateCRCX, b)
	tr.SetPending(3, "3", StateMDCX, a)

	freed := tr.FreeAllForBSC(a)
	if len(freed) != 2 {
		t.Fatalf("FreeAllForBSC(a) freed %d endpoints, want 2", len(freed))
	}
	if tr.PendingAt(2).Empty() {
		t.Fatalf("FreeAllForBSC(a) should not touch bsc b's pending slot")
	}
}
