package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/fileio"
	"github.com/gita-voice-lab/internal/logging"
)

// TurnRecord is what the Archive keeps of one finished turn.
type TurnRecord struct {
	CorrelationID string
	Language      convo.Language
	StartedAt     time.Time
	Capture       *Capture
	Transcript    string
	Reply         string
	ReplyAudio    []byte
	Error         string
	Durations     map[Stage]time.Duration
}

// sidecar is the JSON written next to the audio files of a turn.
type sidecar struct {
	CorrelationID string           `json:"correlation_id"`
	Language      string           `json:"language"`
	StartedUTC    string           `json:"started_utc"`
	CaptureWAV    string           `json:"capture_wav,omitempty"`
	ReplyAudio    string           `json:"reply_audio,omitempty"`
	Transcript    string           `json:"transcript,omitempty"`
	Reply         string           `json:"reply,omitempty"`
	Error         string           `json:"error,omitempty"`
	StageMs       map[string]int64 `json:"stage_ms,omitempty"`
}

// Archive saves captured and synthesized audio per turn with a JSON
// sidecar keyed by correlation id. A nil *Archive records nothing.
type Archive struct {
	Dir string
}

// NewArchive returns nil when dir is empty.
func NewArchive(dir string) *Archive {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &Archive{Dir: dir}
}

// Record writes the turn's audio and sidecar into the archive directory.
func (a *Archive) Record(r TurnRecord) error {
	if a == nil {
		return nil
	}
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	base := filepath.Join(a.Dir, fmt.Sprintf("%s_cid%s", started.UTC().Format("20060102T150405.000Z"), r.CorrelationID))

	sc := sidecar{
		CorrelationID: r.CorrelationID,
		Language:      r.Language.String(),
		StartedUTC:    started.UTC().Format(time.RFC3339Nano),
		Transcript:    r.Transcript,
		Reply:         r.Reply,
		Error:         r.Error,
	}
	if r.Capture != nil && !r.Capture.Empty() {
		sc.CaptureWAV = base + ".wav"
		if err := fileio.WriteAtomic(sc.CaptureWAV, r.Capture.WAV(), 0o644, 0o755); err != nil {
			return fmt.Errorf("save capture: %w", err)
		}
	}
	if len(r.ReplyAudio) > 0 {
		sc.ReplyAudio = base + "_reply.wav"
		if err := fileio.WriteAtomic(sc.ReplyAudio, r.ReplyAudio, 0o644, 0o755); err != nil {
			return fmt.Errorf("save reply audio: %w", err)
		}
	}
	if len(r.Durations) > 0 {
		sc.StageMs = make(map[string]int64, len(r.Durations))
		for s, d := range r.Durations {
			sc.StageMs[string(s)] = d.Milliseconds()
		}
	}
	b, err := sonic.ConfigStd.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	if err := fileio.WriteAtomic(base+".json", b, 0o644, 0o755); err != nil {
		return fmt.Errorf("save sidecar: %w", err)
	}
	logging.Debugw("archive: saved turn", "path", base+".json", "correlation_id", r.CorrelationID)
	return nil
}

// Find returns the sidecar path for cid, or "".
func (a *Archive) Find(cid string) string {
	if a == nil || cid == "" {
		return ""
	}
	matches, err := filepath.Glob(filepath.Join(a.Dir, "*_cid"+cid+".json"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// StartCleaner removes archived turns older than retention and keeps at
// most maxFiles of them, checking every interval until ctx is done. The
// caller must wg.Add(1) first.
func (a *Archive) StartCleaner(ctx context.Context, wg *sync.WaitGroup, retention, interval time.Duration, maxFiles int) {
	go func() {
		defer wg.Done()
		if a == nil {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := a.Clean(time.Now().Add(-retention), maxFiles); err != nil {
					logging.Debugw("archive: cleanup failed", "err", err)
				} else if n > 0 {
					logging.Infow("archive: removed old turns", "count", n)
				}
			}
		}
	}()
}

// Clean removes every turn whose sidecar is older than cutoff, then the
// oldest turns beyond maxFiles (0 means no limit). It returns how many
// turns were removed.
func (a *Archive) Clean(cutoff time.Time, maxFiles int) (int, error) {
	entries, err := os.ReadDir(a.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	type turnFiles struct {
		json string
		mod  time.Time
	}
	var turns []turnFiles
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		turns = append(turns, turnFiles{json: filepath.Join(a.Dir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].mod.Before(turns[j].mod) })

	removed := 0
	keep := turns[:0]
	for _, t := range turns {
		if t.mod.Before(cutoff) {
			a.remove(t.json)
			removed++
			continue
		}
		keep = append(keep, t)
	}
	if maxFiles > 0 && len(keep) > maxFiles {
		for _, t := range keep[:len(keep)-maxFiles] {
			a.remove(t.json)
			removed++
		}
	}
	return removed, nil
}

func (a *Archive) remove(jsonPath string) {
	base := strings.TrimSuffix(jsonPath, ".json")
	for _, p := range []string{jsonPath, base + ".wav", base + "_reply.wav"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Debugw("archive: remove failed", "path", p, "err", err)
		}
	}
}
