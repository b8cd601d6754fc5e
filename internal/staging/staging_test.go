package staging

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vsxreg/internal/config"
	"vsxreg/internal/registry"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestAreas returns one area per backend so every behaviour is checked
// against both stores.
func newTestAreas(t *testing.T, maxSize int64) map[string]registry.StagingArea {
	t.Helper()
	fsArea, err := NewFileSystemStagingArea(filepath.Join(t.TempDir(), "staging"), fixedClock{testNow}, maxSize)
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}
	return map[string]registry.StagingArea{
		"memory":     NewMemoryStagingArea(fixedClock{testNow}, maxSize),
		"filesystem": fsArea,
	}
}

func stage(t *testing.T, sa registry.StagingArea, versionID int64, content string) {
	t.Helper()
	if err := sa.Stage(versionID, strings.NewReader(content)); err != nil {
		t.Fatalf("Stage(%d) error = %v", versionID, err)
	}
}

func TestStagingArea_Stage(t *testing.T) {
	for name, sa := range newTestAreas(t, 1024) {
		t.Run(name, func(t *testing.T) {
			stage(t, sa, 1, "hello")

			count, _ := sa.Count()
			if count != 1 {
				t.Errorf("Count() = %d, want 1", count)
			}
			size, _ := sa.Size()
			if size != 5 {
				t.Errorf("Size() = %d, want 5", size)
			}

			if err := sa.Stage(1, strings.NewReader("again")); err == nil {
				t.Error("Stage() of an already staged version expected error")
			}
		})
	}
}

func TestStagingArea_Dedup(t *testing.T) {
	for name, sa := range newTestAreas(t, 1024) {
		t.Run(name, func(t *testing.T) {
			stage(t, sa, 1, "same content")
			stage(t, sa, 2, "same content")

			count, _ := sa.Count()
			if count != 2 {
				t.Errorf("Count() = %d, want 2", count)
			}
			size, _ := sa.Size()
			if size != int64(len("same content")) {
				t.Errorf("Size() = %d, want %d (deduped)", size, len("same content"))
			}

			// Shared content stays until the last reference goes.
			if err := sa.Discard(1); err != nil {
				t.Fatalf("Discard() error = %v", err)
			}
			if size, _ := sa.Size(); size != int64(len("same content")) {
				t.Errorf("Size() after first discard = %d", size)
			}
			if err := sa.Discard(2); err != nil {
				t.Fatalf("Discard() error = %v", err)
			}
			if size, _ := sa.Size(); size != 0 {
				t.Errorf("Size() after second discard = %d, want 0", size)
			}
		})
	}
}

func TestStagingArea_IsStaged(t *testing.T) {
	for name, sa := range newTestAreas(t, 1024) {
		t.Run(name, func(t *testing.T) {
			stage(t, sa, 7, "data")

			staged, err := sa.IsStaged(7)
			if err != nil {
				t.Fatalf("IsStaged() error = %v", err)
			}
			if !staged {
				t.Error("IsStaged(7) = false, want true")
			}
			if staged, _ := sa.IsStaged(8); staged {
				t.Error("IsStaged(8) = true, want false")
			}
		})
	}
}

func TestStagingArea_ProcessNext(t *testing.T) {
	for name, sa := range newTestAreas(t, 1024) {
		t.Run(name, func(t *testing.T) {
			stage(t, sa, 1, "first")
			stage(t, sa, 2, "second")

			// Failure keeps the upload at the head of the queue.
			err := sa.ProcessNext(func(r io.Reader, u registry.StagedUpload) error {
				return fmt.Errorf("simulated failure")
			})
			if err == nil {
				t.Fatal("ProcessNext() expected error")
			}
			if count, _ := sa.Count(); count != 2 {
				t.Errorf("Count() after failed process = %d, want 2", count)
			}

			var got []string
			for i := 0; i < 2; i++ {
				err := sa.ProcessNext(func(r io.Reader, u registry.StagedUpload) error {
					data, err := io.ReadAll(r)
					if err != nil {
						return err
					}
					if u.Size != int64(len(data)) {
						t.Errorf("upload.Size = %d, want %d", u.Size, len(data))
					}
					if !u.StagedAt.Equal(testNow) {
						t.Errorf("upload.StagedAt = %v, want %v", u.StagedAt, testNow)
					}
					if !strings.HasPrefix(u.Digest, "sha256:") {
						t.Errorf("upload.Digest = %q", u.Digest)
					}
					got = append(got, fmt.Sprintf("%d=%s", u.VersionID, data))
					return nil
				})
				if err != nil {
					t.Fatalf("ProcessNext() error = %v", err)
				}
			}
			if strings.Join(got, ",") != "1=first,2=second" {
				t.Errorf("processed = %v, want FIFO order", got)
			}
			if count, _ := sa.Count(); count != 0 {
				t.Errorf("Count() = %d, want 0", count)
			}
			if size, _ := sa.Size(); size != 0 {
				t.Errorf("Size() = %d, want 0", size)
			}

			err = sa.ProcessNext(func(io.Reader, registry.StagedUpload) error {
				t.Fatal("callback should not be called on empty queue")
				return nil
			})
			if err != nil {
				t.Fatalf("ProcessNext() on empty queue error = %v", err)
			}
		})
	}
}

func TestStagingArea_SizeLimit(t *testing.T) {
	for name, sa := range newTestAreas(t, 10) {
		t.Run(name, func(t *testing.T) {
			stage(t, sa, 1, "hi")

			err := sa.Stage(2, strings.NewReader("this is way too big"))
			if err == nil {
				t.Fatal("expected error when exceeding size limit")
			}
			if !strings.Contains(err.Error(), "staging area full") {
				t.Errorf("error = %v, want 'staging area full'", err)
			}
			if size, _ := sa.Size(); size != 2 {
				t.Errorf("Size() after rejected stage = %d, want 2", size)
			}
			if staged, _ := sa.IsStaged(2); staged {
				t.Error("rejected upload is queued")
			}
		})
	}
}

func TestFileSystemStagingArea_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")
	sa, err := NewFileSystemStagingArea(dir, fixedClock{testNow}, 1024)
	if err != nil {
		t.Fatal(err)
	}
	stage(t, sa, 3, "persisted")

	reopened, err := NewFileSystemStagingArea(dir, fixedClock{testNow}, 1024)
	if err != nil {
		t.Fatal(err)
	}
	var got string
	err = reopened.ProcessNext(func(r io.Reader, u registry.StagedUpload) error {
		data, _ := io.ReadAll(r)
		got = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessNext() error = %v", err)
	}
	if got != "persisted" {
		t.Errorf("content = %q, want %q", got, "persisted")
	}
}

func TestNewStagingAreaFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StagingConfig
		wantErr bool
	}{
		{"memory", config.StagingConfig{Type: "memory"}, false},
		{"filesystem", config.StagingConfig{Type: "filesystem", StagingDir: t.TempDir()}, false},
		{"filesystem without dir", config.StagingConfig{Type: "filesystem"}, true},
		{"unknown", config.StagingConfig{Type: "tape"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sa, err := NewStagingAreaFromConfig(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && sa == nil {
				t.Error("expected staging area")
			}
		})
	}
}
