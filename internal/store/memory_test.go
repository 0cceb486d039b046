package store

import (
	"sync"
	"testing"
	"time"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
	if _, ok := store.Get("acme"); ok {
		t.Error("Get() on empty store ok = true, want false")
	}
}

func TestMemoryStore_UpdateAndGet(t *testing.T) {
	store := NewMemoryStore()

	store.Update(Snapshot{
		Workspace:    "acme",
		Organization: "Acme",
		Total:        120,
		Active:       42,
		Ready:        true,
		Fetches:      1,
		UpdatedAt:    time.Now(),
	})

	got, ok := store.Get("acme")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Total != 120 {
		t.Errorf("Get().Total = %v, want %v", got.Total, 120)
	}
	if got.Organization != "Acme" {
		t.Errorf("Get().Organization = %v, want %v", got.Organization, "Acme")
	}
	if !got.Ready {
		t.Error("Get().Ready = false, want true")
	}
}

func TestMemoryStore_UpdateOverwrites(t *testing.T) {
	store := NewMemoryStore()

	store.Update(Snapshot{Workspace: "acme", Total: 1})
	store.Update(Snapshot{Workspace: "acme", Total: 2})
	store.Update(Snapshot{Workspace: "acme", Total: 3})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].Total != 3 {
		t.Errorf("GetAll()[0].Total = %v, want %v", all[0].Total, 3)
	}
}

func TestMemoryStore_MultipleWorkspaces(t *testing.T) {
	store := NewMemoryStore()

	store.Update(Snapshot{Workspace: "acme"})
	store.Update(Snapshot{Workspace: "globex"})

	if got := len(store.GetAll()); got != 2 {
		t.Errorf("GetAll() = %v items, want 2", got)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()

	msg := "boom"
	next := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Update(Snapshot{Workspace: "acme", LastError: &msg, NextFetchAt: &next})

	// mutating the caller's values must not leak into the store
	msg = "changed"
	next = next.Add(time.Hour)

	got, _ := store.Get("acme")
	if *got.LastError != "boom" {
		t.Errorf("Get().LastError = %v, want %v", *got.LastError, "boom")
	}
	if !got.NextFetchAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Get().NextFetchAt = %v, want 2026-01-01", *got.NextFetchAt)
	}

	*got.LastError = "mutated"
	again, _ := store.Get("acme")
	if *again.LastError != "boom" {
		t.Errorf("Get().LastError after mutation = %v, want %v", *again.LastError, "boom")
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	go func() {
		store.Update(Snapshot{Workspace: "acme", Total: 7})
	}()

	select {
	case s := <-ch:
		if s.Total != 7 {
			t.Errorf("received Total = %v, want %v", s.Total, 7)
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	ch3 := store.Subscribe()

	go func() {
		store.Update(Snapshot{Workspace: "acme"})
	}()

	received := 0
	timeout := time.After(1 * time.Second)

	for received < 3 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-ch3:
			received++
		case <-timeout:
			t.Fatalf("Only received %d/3 updates", received)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}

	// second call is a no-op
	store.Unsubscribe(ch)
}

func TestMemoryStore_UnsubscribeStopsDelivery(t *testing.T) {
	store := NewMemoryStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()

	store.Unsubscribe(ch1)

	go func() {
		store.Update(Snapshot{Workspace: "acme"})
	}()

	select {
	case <-ch2:
	case <-time.After(1 * time.Second):
		t.Error("ch2 should still receive updates")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()

	// never read
	_ = store.Subscribe()

	ch2 := store.Subscribe()

	done := make(chan bool)

	go func() {
		for i := 0; i < 200; i++ {
			store.Update(Snapshot{Workspace: "acme", Fetches: i})
		}
		done <- true
	}()

	go func() {
		for range ch2 {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Update() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	numGoroutines := 10
	numUpdates := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				store.Update(Snapshot{Workspace: "acme", Fetches: j})
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				_ = store.GetAll()
				_, _ = store.Get("acme")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()
}
