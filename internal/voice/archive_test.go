package voice

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gita-voice-lab/internal/convo"
)

func TestArchiveRecordAndFind(t *testing.T) {
	a := NewArchive(t.TempDir())
	capture := Capture{PCM: []byte{1, 0}, SampleRate: 16000, Channels: 1}
	err := a.Record(TurnRecord{
		CorrelationID: "cid-1",
		Language:      convo.English,
		StartedAt:     time.Now(),
		Capture:       &capture,
		Transcript:    "What is dharma?",
		Reply:         "Dharma is...",
		ReplyAudio:    replyAudio,
		Durations:     map[Stage]time.Duration{StageConverse: 1500 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	path := a.Find("cid-1")
	if path == "" {
		t.Fatalf("sidecar not found")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var sc sidecar
	if err := sonic.Unmarshal(b, &sc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sc.Reply != "Dharma is..." || sc.Language != "en-IN" || sc.StageMs["converse"] != 1500 {
		t.Fatalf("unexpected sidecar: %+v", sc)
	}
	for _, p := range []string{sc.CaptureWAV, sc.ReplyAudio} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("audio file missing: %v", err)
		}
	}
}

func TestNilArchiveIsNoop(t *testing.T) {
	var a *Archive
	if NewArchive("  ") != nil {
		t.Fatalf("expected nil archive for empty dir")
	}
	if err := a.Record(TurnRecord{CorrelationID: "x"}); err != nil {
		t.Fatalf("nil archive record: %v", err)
	}
	if a.Find("x") != "" {
		t.Fatalf("nil archive found something")
	}
}

func TestArchiveClean(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir)
	base := time.Now().Add(-time.Hour)
	for i, cid := range []string{"old", "mid", "new"} {
		if err := a.Record(TurnRecord{CorrelationID: cid, StartedAt: base.Add(time.Duration(i) * time.Minute), ReplyAudio: replyAudio}); err != nil {
			t.Fatalf("record: %v", err)
		}
		mod := base.Add(time.Duration(i) * time.Minute)
		path := a.Find(cid)
		os.Chtimes(path, mod, mod)
	}
	os.Chtimes(a.Find("old"), base.Add(-48*time.Hour), base.Add(-48*time.Hour))

	n, err := a.Clean(time.Now().Add(-24*time.Hour), 1)
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if a.Find("new") == "" || a.Find("mid") != "" || a.Find("old") != "" {
		t.Fatalf("wrong turns kept")
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if !strings.Contains(e.Name(), "cidnew") {
			t.Fatalf("leftover file %s", filepath.Join(dir, e.Name()))
		}
	}
}

func TestOrchestratorArchivesTurns(t *testing.T) {
	a := NewArchive(t.TempDir())
	h := newHarness(t, WithArchive(a))
	if err := h.speak(t); err != nil {
		t.Fatalf("turn: %v", err)
	}
	cid := h.o.Snapshot().CorrelationID
	if a.Find(cid) == "" {
		t.Fatalf("turn %s not archived", cid)
	}
}
