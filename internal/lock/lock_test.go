package lock

import (
	"os"
	"strconv"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	path := Path(t.TempDir())

	if err := Acquire(path); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	held, pid, err := IsHeld(path)
	if err != nil {
		t.Fatal(err)
	}
	if !held || pid != os.Getpid() {
		t.Errorf("expected lock held by %d, got held=%v pid=%d", os.Getpid(), held, pid)
	}
	// Re-acquiring from the same process is allowed.
	if err := Acquire(path); err != nil {
		t.Errorf("expected re-acquire to succeed, got %v", err)
	}
	if err := Release(path); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if held, _, _ := IsHeld(path); held {
		t.Error("expected lock released")
	}
	if err := Release(path); err != nil {
		t.Errorf("releasing twice should be a no-op, got %v", err)
	}
}

func TestAcquire_StaleLock(t *testing.T) {
	path := Path(t.TempDir())
	// PIDs this large are not in use on a test host.
	if err := os.WriteFile(path, []byte(strconv.Itoa(1<<30)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Acquire(path); err != nil {
		t.Fatalf("expected stale lock to be taken over, got %v", err)
	}
}

func TestAcquire_HeldByOtherProcess(t *testing.T) {
	ppid := os.Getppid()
	if ppid <= 1 {
		t.Skip("no live parent process to hold the lock")
	}
	path := Path(t.TempDir())
	if err := os.WriteFile(path, []byte(strconv.Itoa(ppid)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Acquire(path); err == nil {
		t.Fatal("expected error while another process holds the lock")
	}
}
