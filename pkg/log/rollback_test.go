package log

import "testing"

// TestRollbackUndoesMultipleUpdatesInLIFOOrder checks that when a
// transaction updates the same page twice, aborting restores the page's
// very first before-image, not the intermediate one.
func TestRollbackUndoesMultipleUpdatesInLIFOOrder(t *testing.T) {
	w, store := openTestWriter(t)

	if err := w.Begin(1); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	v0 := mockPage(1, 1, 0x00)
	v1 := mockPage(1, 1, 0x01)
	v2 := mockPage(1, 1, 0x02)

	if err := w.Update(1, v0, v1); err != nil {
		t.Fatalf("Update 1: %v", err)
	}
	if err := w.Update(1, v1, v2); err != nil {
		t.Fatalf("Update 2: %v", err)
	}

	store.PoolMutex().Lock()
	err := w.Abort(1)
	store.PoolMutex().Unlock()
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}

	got := store.pages[store.key(v0.ID())]
	if got == nil || string(got.Data()) != string(v0.Data()) {
		t.Fatalf("page after abort = %v, want original before-image %v", got, v0.Data())
	}
}

// TestRollbackIgnoresOtherTransactions checks that rolling back tid 1 never
// touches pages tid 2 wrote, even when their updates interleave in the log.
func TestRollbackIgnoresOtherTransactions(t *testing.T) {
	w, store := openTestWriter(t)

	if err := w.Begin(1); err != nil {
		t.Fatalf("Begin 1: %v", err)
	}
	if err := w.Begin(2); err != nil {
		t.Fatalf("Begin 2: %v", err)
	}

	a0 := mockPage(1, 1, 0x00)
	a1 := mockPage(1, 1, 0x01)
	if err := w.Update(1, a0, a1); err != nil {
		t.Fatalf("Update 1: %v", err)
	}

	b0 := mockPage(1, 2, 0x10)
	b1 := mockPage(1, 2, 0x11)
	if err := w.Update(2, b0, b1); err != nil {
		t.Fatalf("Update 2: %v", err)
	}

	store.PoolMutex().Lock()
	err := w.Abort(1)
	store.PoolMutex().Unlock()
	if err != nil {
		t.Fatalf("Abort: %v", err)
	}

	if _, ok := store.pages[store.key(b1.ID())]; ok {
		t.Fatalf("tid 1's abort must not touch tid 2's page")
	}
}
