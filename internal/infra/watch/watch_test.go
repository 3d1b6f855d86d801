package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestFileReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatal(err)
	}
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 4)
	ready := make(chan error, 1)
	go func() {
		ready <- File(ctx, path, logger, func() error {
			reloaded <- struct{}{}
			return nil
		})
	}()

	// Keep writing until the watcher is registered and picks a change up.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(3 * Debounce)
	defer tick.Stop()
	for {
		select {
		case <-reloaded:
			cancel()
			if err := <-ready; err != nil {
				t.Fatalf("File() error = %v", err)
			}
			return
		case err := <-ready:
			t.Fatalf("File() returned early: %v", err)
		case <-tick.C:
			if err := os.WriteFile(path, []byte("v2"), 0o600); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("reload was not triggered")
		}
	}
}

func TestFileMissingDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	err := File(context.Background(), filepath.Join(t.TempDir(), "missing", "x.yaml"), logger, func() error { return nil })
	if err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
