package driver

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables controlling stage timing output.
const (
	envTimingPath = "HDL_FORCE_TIMING_JSONL"
	envTiming     = "HDL_FORCE_TIMING"
)

// timingEvent is the shape of one JSONL line.
type timingEvent struct {
	Phase      string  `json:"phase"`
	Kind       string  `json:"kind"`
	File       string  `json:"file,omitempty"`
	Status     string  `json:"status,omitempty"`
	StartMS    float64 `json:"start_ms"`
	DurationMS float64 `json:"duration_ms"`
	EndMS      float64 `json:"end_ms"`
}

// MarshalLogObject writes the event with the same keys as its JSON form.
func (ev timingEvent) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("phase", ev.Phase)
	enc.AddString("kind", ev.Kind)
	if ev.File != "" {
		enc.AddString("file", ev.File)
	}
	if ev.Status != "" {
		enc.AddString("status", ev.Status)
	}
	enc.AddFloat64("start_ms", ev.StartMS)
	enc.AddFloat64("duration_ms", ev.DurationMS)
	enc.AddFloat64("end_ms", ev.EndMS)
	return nil
}

// timingRecorder writes one JSON line per stage or per design through a zap
// core with a bare JSON encoder. A nil or disabled recorder ignores every
// call.
type timingRecorder struct {
	start time.Time
	file  *os.File
	log   *zap.Logger
	err   error
}

func newTimingRecorder(start time.Time, path string) *timingRecorder {
	tr := &timingRecorder{start: start}
	if path == "" {
		return tr
	}
	f, err := os.Create(path)
	if err != nil {
		tr.err = err
		return tr
	}
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	tr.file = f
	tr.log = zap.New(zapcore.NewCore(enc, zapcore.Lock(f), zapcore.DebugLevel))
	return tr
}

func (tr *timingRecorder) Enabled() bool {
	return tr != nil && tr.log != nil
}

func (tr *timingRecorder) Err() error {
	if tr == nil {
		return nil
	}
	return tr.err
}

func (tr *timingRecorder) Close() {
	if !tr.Enabled() {
		return
	}
	_ = tr.log.Sync()
	_ = tr.file.Close()
}

func (tr *timingRecorder) record(phase, kind, file, status string, start time.Time, duration time.Duration) {
	if !tr.Enabled() {
		return
	}
	ev := timingEvent{
		Phase:      phase,
		Kind:       kind,
		File:       file,
		Status:     status,
		StartMS:    durationToMS(start.Sub(tr.start)),
		DurationMS: durationToMS(duration),
	}
	ev.EndMS = ev.StartMS + ev.DurationMS
	tr.log.Info("", zap.Inline(ev))
}

func (tr *timingRecorder) RecordStage(phase string, start time.Time, status string) {
	tr.record(phase, "stage", "", status, start, time.Since(start))
}

func (tr *timingRecorder) RecordFile(phase, file, status string, start time.Time) {
	tr.record(phase, "file", file, status, start, time.Since(start))
}

func durationToMS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000_000.0
}

// resolveTimingPath picks the JSONL destination: the explicit environment
// path, then the driver's TimingPath, then timing.jsonl under the root.
func (d *Driver) resolveTimingPath(rootPath string) string {
	if envPath := os.Getenv(envTimingPath); envPath != "" {
		return envPath
	}
	if !d.Timing && !envBool(envTiming) {
		return ""
	}
	if d.TimingPath != "" {
		return d.TimingPath
	}
	if rootPath == "" {
		return "timing.jsonl"
	}
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		rootPath = filepath.Dir(rootPath)
	}
	return filepath.Join(rootPath, "timing.jsonl")
}

func envBool(key string) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return val == "1" || val == "true" || val == "yes" || val == "on"
}
