package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), ".build.lock")
}

func TestFileLock_LockUnlock(t *testing.T) {
	lock := NewFileLock(lockPath(t))

	if err := lock.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}

	if _, err := os.Stat(lock.Path()); os.IsNotExist(err) {
		t.Error("Lock file was not created")
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock() failed: %v", err)
	}
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	lock := NewFileLock(lockPath(t))

	if err := lock.Unlock(); err != nil {
		t.Errorf("Unlock() without Lock() should not error: %v", err)
	}
}

func TestFileLock_DoubleUnlock(t *testing.T) {
	lock := NewFileLock(lockPath(t))

	if err := lock.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("First Unlock() failed: %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Errorf("Second Unlock() should not error: %v", err)
	}
}

func TestFileLock_TryLock_AlreadyLocked(t *testing.T) {
	path := lockPath(t)

	lock1 := NewFileLock(path)
	if err := lock1.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	defer func() { _ = lock1.Unlock() }()

	lock2 := NewFileLock(path)
	acquired, err := lock2.TryLock()
	if err != nil {
		t.Fatalf("TryLock() error: %v", err)
	}
	if acquired {
		t.Error("TryLock() should return false when lock is held")
		_ = lock2.Unlock()
	}
	if lock2.IsLocked() {
		t.Error("Failed TryLock() should not mark lock as locked")
	}
}

func TestFileLock_LockContext_CancelledWhileHeld(t *testing.T) {
	path := lockPath(t)

	holder := NewFileLock(path)
	if err := holder.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	waiter := NewFileLock(path)
	if err := waiter.LockContext(ctx); err == nil {
		t.Fatal("LockContext() should fail while another holder has the lock")
	}
	if waiter.IsLocked() {
		t.Error("waiter should not be marked as locked")
	}
}

func TestFileLock_LockContext_AcquiresAfterRelease(t *testing.T) {
	path := lockPath(t)

	holder := NewFileLock(path)
	if err := holder.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = holder.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	waiter := NewFileLock(path)
	if err := waiter.LockContext(ctx); err != nil {
		t.Fatalf("LockContext() failed: %v", err)
	}
	if !waiter.IsLocked() {
		t.Error("waiter should hold the lock")
	}
	_ = waiter.Unlock()
}

func TestFileLock_ConcurrentAccess(t *testing.T) {
	path := lockPath(t)
	counter := 0
	var mu sync.Mutex

	numGoroutines := 10
	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			lock := NewFileLock(path)
			if err := lock.Lock(); err != nil {
				t.Errorf("Lock() failed: %v", err)
				return
			}
			defer func() { _ = lock.Unlock() }()

			mu.Lock()
			counter++
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)
		}()
	}

	wg.Wait()

	if counter != numGoroutines {
		t.Errorf("counter = %d, want %d", counter, numGoroutines)
	}
}

func TestFileLock_CreatesDirectory(t *testing.T) {
	nestedDir := filepath.Join(t.TempDir(), "nested", "data")

	lock := NewFileLock(filepath.Join(nestedDir, ".build.lock"))
	if err := lock.Lock(); err != nil {
		t.Fatalf("Lock() failed to create nested directory: %v", err)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := os.Stat(nestedDir); os.IsNotExist(err) {
		t.Error("Lock() did not create the nested directory")
	}
}
