package logging

import (
	"sync"
	"testing"
)

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) != Discard {
		t.Error("OrDiscard(nil) did not return Discard")
	}
	r := &Recorder{}
	if OrDiscard(r) != Logger(r) {
		t.Error("OrDiscard(r) did not return r")
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	r.Info("version published", "extension", "acme.tool", "files", 3)
	r.Warn("retrying", "attempt", 1)
	r.Warn("retrying", "attempt", 2)

	if n := len(r.Entries()); n != 3 {
		t.Fatalf("len(Entries()) = %d, want 3", n)
	}

	retries := r.Find("retrying")
	if len(retries) != 2 {
		t.Fatalf("Find(retrying) = %d entries, want 2", len(retries))
	}
	if retries[1].Level != LevelWarn {
		t.Errorf("Level = %s, want %s", retries[1].Level, LevelWarn)
	}
	if v, ok := retries[1].Attr("attempt"); !ok || v != 2 {
		t.Errorf("Attr(attempt) = %v, %v, want 2, true", v, ok)
	}

	published := r.Find("version published")[0]
	if _, ok := published.Attr("missing"); ok {
		t.Error("Attr(missing) reported present")
	}
	if v, _ := published.Attr("extension"); v != "acme.tool" {
		t.Errorf("Attr(extension) = %v", v)
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	r := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Debug("tick")
		}()
	}
	wg.Wait()
	if n := len(r.Find("tick")); n != 8 {
		t.Errorf("recorded %d entries, want 8", n)
	}
}
