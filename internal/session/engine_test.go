package session

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/loqalabs/phonex/internal/audio"
	"github.com/loqalabs/phonex/internal/bytecode"
	"github.com/loqalabs/phonex/internal/legacy"
	"github.com/loqalabs/phonex/internal/player"
	"github.com/loqalabs/phonex/internal/spec"
	"github.com/loqalabs/phonex/internal/synth"
	"github.com/loqalabs/phonex/internal/voice"
)

const helloSpec = "SIL 0.190 0.0\nHH 0.190 155\nEH 0.100 155\nL 0.100 155\nOW 0.190 155\nSIL 0.280 0.0"

const testRate = 16000

type harness struct {
	engine  *Engine
	voices  *voice.Registry
	reader  *sdkmetric.ManualReader
	calls   atomic.Int32
	started chan string
	release chan struct{}
	dir     string

	mu          sync.Mutex
	transitions []Transition
	snapshots   []Snapshot
}

func (h *harness) Record(_ context.Context, t Transition) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, t)
	return nil
}

func newHarness(t *testing.T, synthesize synth.Func) *harness {
	t.Helper()
	h := &harness{
		voices:  voice.NewRegistry(),
		reader:  sdkmetric.NewManualReader(),
		started: make(chan string, 4),
		release: make(chan struct{}),
		dir:     t.TempDir(),
	}
	if synthesize == nil {
		synthesize = func(ctx context.Context, req synth.Request) (*audio.Buffer, error) {
			n := int(math.Round(req.Specs.TotalDuration() * float64(req.SampleRate)))
			return &audio.Buffer{Samples: make([]float64, n), SampleRate: req.SampleRate}, nil
		}
	}
	counted := synth.Func(func(ctx context.Context, req synth.Request) (*audio.Buffer, error) {
		h.calls.Add(1)
		return synthesize(ctx, req)
	})
	play := player.Func(func(ctx context.Context, path string) error {
		if _, err := os.Stat(path); err != nil {
			return err
		}
		h.started <- path
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.release:
			return nil
		}
	})
	e, err := New(Options{
		Parser:        spec.NewParser(nil, 0),
		Voices:        h.voices,
		Synth:         counted,
		Player:        play,
		SampleRate:    testRate,
		TempDir:       h.dir,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(h.reader)),
		Recorder:      h,
		OnChange: func(s Snapshot) {
			h.mu.Lock()
			h.snapshots = append(h.snapshots, s)
			h.mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Close)
	h.engine = e
	return h
}

// helloFile parses the hello spec and saves it as PHX.
func (h *harness) helloFile(t *testing.T) string {
	t.Helper()
	if _, err := h.engine.Parse(context.Background(), helloSpec); err != nil {
		t.Fatalf("parse: %v", err)
	}
	path := filepath.Join(h.dir, "hello.phx")
	if err := h.engine.SaveBytecode(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func (h *harness) render(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.engine.Render(context.Background(), h.helloFile(t))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return snap
}

func (h *harness) waitStarted(t *testing.T) string {
	t.Helper()
	select {
	case path := <-h.started:
		return path
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not start")
	}
	return ""
}

func TestHelloEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	specs, err := h.engine.Parse(context.Background(), helloSpec)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(specs) != 6 || math.Abs(specs.TotalDuration()-1.04) > 1e-9 {
		t.Fatalf("expected 6 specs of 1.04s, got %d of %v", len(specs), specs.TotalDuration())
	}
	if got := h.engine.Snapshot().Phase; got != "parsed" {
		t.Fatalf("expected parsed, got %s", got)
	}
	path := filepath.Join(h.dir, "hello.phx")
	if err := h.engine.SaveBytecode(path); err != nil {
		t.Fatal(err)
	}
	snap, err := h.engine.Render(context.Background(), path)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := int(math.Round(1.04 * testRate))
	if snap.Samples != want || snap.Phase != "rendered" || snap.Specs != 6 {
		t.Fatalf("unexpected snapshot %+v, want %d samples", snap, want)
	}
	if !h.engine.State().Specs.Equal(specs) {
		t.Fatal("rendered specs should match the saved ones")
	}
}

func TestSpeedTwoHalvesSamples(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.SetSpeed(2.0); err != nil {
		t.Fatal(err)
	}
	snap := h.render(t)
	want := int(math.Round(1.04*testRate)) / 2
	if d := snap.Samples - want; d < -1 || d > 1 {
		t.Fatalf("expected about %d samples, got %d", want, snap.Samples)
	}
}

func TestSetSpeedRejectsOutOfRange(t *testing.T) {
	h := newHarness(t, nil)
	for _, f := range []float64{0, 0.49, 2.01, -1, math.NaN(), math.Inf(1)} {
		if err := h.engine.SetSpeed(f); !errors.Is(err, ErrInvalidSpeed) {
			t.Fatalf("speed %v: expected ErrInvalidSpeed, got %v", f, err)
		}
	}
	if got := h.engine.Snapshot().Speed; got != 1 {
		t.Fatalf("rejected speeds must keep the factor, got %v", got)
	}
	if _, err := New(Options{
		Parser: spec.NewParser(nil, 0),
		Voices: voice.NewRegistry(),
		Synth:  synth.NewMockSynth(0),
		Player: player.Func(func(context.Context, string) error { return nil }),
		Speed:  math.NaN(),
	}); !errors.Is(err, ErrInvalidSpeed) {
		t.Fatalf("expected ErrInvalidSpeed for NaN option, got %v", err)
	}
}

func TestParseInvalidatesCache(t *testing.T) {
	h := newHarness(t, nil)
	h.render(t)
	if _, err := h.engine.Parse(context.Background(), "AA 0.100 120"); err != nil {
		t.Fatal(err)
	}
	if h.engine.State().Buffer != nil {
		t.Fatal("parse must drop the cached buffer")
	}
	if _, err := h.engine.Play(context.Background()); !errors.Is(err, ErrNotRendered) {
		t.Fatalf("expected ErrNotRendered, got %v", err)
	}
}

func TestParseErrorKeepsState(t *testing.T) {
	h := newHarness(t, nil)
	h.render(t)
	_, err := h.engine.Parse(context.Background(), "SIL 0.190 0.0\nSIL 0.280 0.0")
	var pe *spec.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if h.engine.State().Buffer == nil {
		t.Fatal("failed parse must keep the cache")
	}
}

func TestChangeVoiceInvalidatesCacheKeepsSpecs(t *testing.T) {
	h := newHarness(t, nil)
	h.voices.Register(voice.New("Robot", 90, nil))
	h.render(t)
	before := h.engine.Specs()
	if err := h.engine.ChangeVoice("Robot"); err != nil {
		t.Fatal(err)
	}
	st := h.engine.State()
	if st.Buffer != nil || st.Voice != "Robot" || !st.Specs.Equal(before) {
		t.Fatalf("unexpected state after voice change: %+v", h.engine.Snapshot())
	}
	if err := h.engine.ChangeVoice("Nobody"); !errors.Is(err, ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
}

func TestRenderFailuresClearCache(t *testing.T) {
	boom := errors.New("boom")
	var fail atomic.Bool
	h := newHarness(t, func(ctx context.Context, req synth.Request) (*audio.Buffer, error) {
		if fail.Load() {
			return nil, boom
		}
		return &audio.Buffer{Samples: make([]float64, 100), SampleRate: req.SampleRate}, nil
	})
	path := h.helloFile(t)
	specs := h.engine.Specs()

	cases := []struct {
		name  string
		path  func() string
		check func(error) bool
	}{
		{"missing", func() string { return filepath.Join(h.dir, "missing.phx") }, func(err error) bool { return errors.Is(err, os.ErrNotExist) }},
		{"corrupt", func() string {
			p := filepath.Join(h.dir, "bad.phx")
			if err := os.WriteFile(p, []byte{1, 2, 3}, 0o644); err != nil {
				t.Fatal(err)
			}
			return p
		}, func(err error) bool { return errors.Is(err, bytecode.ErrCorruptBytecode) }},
		{"synthesis", func() string { fail.Store(true); return path }, func(err error) bool {
			var se *SynthesisError
			return errors.As(err, &se) && errors.Is(err, boom)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fail.Store(false)
			if _, err := h.engine.Render(context.Background(), path); err != nil {
				t.Fatalf("render: %v", err)
			}
			_, err := h.engine.Render(context.Background(), tc.path())
			if !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			st := h.engine.State()
			if st.Buffer != nil {
				t.Fatal("failed render must clear the cache")
			}
			if !st.Specs.Equal(specs) {
				t.Fatal("failed render must keep the current specs")
			}
		})
	}
}

func TestPlayNeverSynthesizes(t *testing.T) {
	h := newHarness(t, nil)
	h.render(t)
	if got := h.calls.Load(); got != 1 {
		t.Fatalf("expected one synthesis, got %d", got)
	}
	pb, err := h.engine.Play(context.Background())
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	tmp := h.waitStarted(t)
	if _, err := h.engine.Play(context.Background()); !errors.Is(err, ErrAlreadyPlaying) {
		t.Fatalf("expected ErrAlreadyPlaying, got %v", err)
	}
	if _, err := h.engine.Render(context.Background(), filepath.Join(h.dir, "hello.phx")); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while playing, got %v", err)
	}
	if got := h.engine.Snapshot().Phase; got != "playing" {
		t.Fatalf("expected playing, got %s", got)
	}
	if err := h.engine.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := h.engine.Snapshot().Phase; got != "rendered" {
		t.Fatalf("expected rendered right after stop, got %s", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pb.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled playback, got %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("temp file should be removed, stat err %v", err)
	}
	if got := h.calls.Load(); got != 1 {
		t.Fatalf("play must not synthesize, got %d calls", got)
	}
}

func TestPlaybackCompletes(t *testing.T) {
	h := newHarness(t, nil)
	h.render(t)
	pb, err := h.engine.Play(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	h.waitStarted(t)
	close(h.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pb.Wait(ctx); err != nil {
		t.Fatalf("playback: %v", err)
	}
	snap := h.engine.Snapshot()
	if snap.Playing || snap.Phase != "rendered" {
		t.Fatalf("expected rendered after completion, got %+v", snap)
	}
	second, err := h.engine.Play(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.Generation() != pb.Generation()+1 {
		t.Fatalf("expected next generation, got %d", second.Generation())
	}
	if err := second.Wait(ctx); err != nil {
		t.Fatalf("replay: %v", err)
	}
}

func TestRenderInFlightRejectsMutations(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, req synth.Request) (*audio.Buffer, error) {
		close(entered)
		<-unblock
		return &audio.Buffer{Samples: make([]float64, 10), SampleRate: req.SampleRate}, nil
	})
	path := h.helloFile(t)
	result := h.engine.RenderAsync(context.Background(), path)
	<-entered
	if _, err := h.engine.Render(context.Background(), path); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := h.engine.Parse(context.Background(), helloSpec); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for parse, got %v", err)
	}
	if !h.engine.Snapshot().Rendering {
		t.Fatal("snapshot should report the render")
	}
	close(unblock)
	res := <-result
	if res.Err != nil || res.Snapshot.Samples != 10 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestLoadLegacyActivatesHeaderVoice(t *testing.T) {
	h := newHarness(t, nil)
	h.voices.Register(voice.New("Robot", 90, nil))
	h.render(t)
	data, err := legacy.Encode(h.engine.Specs(), "Robot")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(h.dir, "hello.phn")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	seq, err := h.engine.LoadLegacy(path)
	if err != nil {
		t.Fatalf("load legacy: %v", err)
	}
	if len(seq) != 6 || seq[2].PitchContour[0] != 90 {
		t.Fatalf("expected specs rebuilt from Robot, got %+v", seq)
	}
	snap := h.engine.Snapshot()
	if snap.Voice != "Robot" || snap.Phase != "loaded" || snap.Samples != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	out := filepath.Join(h.dir, "out.phn")
	if err := h.engine.SaveLegacy(out); err != nil {
		t.Fatal(err)
	}
	saved, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(saved) != string(data) {
		t.Fatal("saved stream should match the loaded one")
	}
}

func TestLoadBytecodeErrorsKeepState(t *testing.T) {
	h := newHarness(t, nil)
	h.render(t)
	if _, err := h.engine.LoadBytecode(filepath.Join(h.dir, "nope.phx")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
	if h.engine.State().Buffer == nil {
		t.Fatal("failed load must keep the cache")
	}
	seq, err := h.engine.LoadBytecode(filepath.Join(h.dir, "hello.phx"))
	if err != nil || len(seq) != 6 {
		t.Fatalf("load: %v", err)
	}
	if h.engine.State().Buffer != nil {
		t.Fatal("load must drop the cache")
	}
}

func TestLoadBytecodeRejectsNaNDuration(t *testing.T) {
	h := newHarness(t, nil)
	h.render(t)
	data, err := os.ReadFile(filepath.Join(h.dir, "hello.phx"))
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(data[bytecode.RecordSize+4:], math.Float32bits(float32(math.NaN())))
	bad := filepath.Join(h.dir, "nan.phx")
	if err := os.WriteFile(bad, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.LoadBytecode(bad); !errors.Is(err, bytecode.ErrCorruptBytecode) {
		t.Fatalf("expected corrupt bytecode, got %v", err)
	}
	if h.engine.State().Buffer == nil {
		t.Fatal("rejected bytecode must keep the cache")
	}
	if _, err := h.engine.Render(context.Background(), bad); !errors.Is(err, bytecode.ErrCorruptBytecode) {
		t.Fatalf("expected render to reject corrupt bytecode, got %v", err)
	}
}

func TestExportWAV(t *testing.T) {
	h := newHarness(t, nil)
	out := filepath.Join(h.dir, "out.wav")
	if err := h.engine.ExportWAV(out); !errors.Is(err, ErrNotRendered) {
		t.Fatalf("expected ErrNotRendered, got %v", err)
	}
	h.render(t)
	if err := h.engine.ExportWAV(out); err != nil {
		t.Fatalf("export: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() <= 44 {
		t.Fatalf("expected a wav file, got %v %v", info, err)
	}
}

func TestSaveWithoutSpecs(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.SaveBytecode(filepath.Join(h.dir, "x.phx")); !errors.Is(err, ErrNoSpecs) {
		t.Fatalf("expected ErrNoSpecs, got %v", err)
	}
	if _, err := h.engine.Readable(); !errors.Is(err, ErrNoSpecs) {
		t.Fatalf("expected ErrNoSpecs, got %v", err)
	}
}

func TestTransitionsRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.render(t)
	_, _ = h.engine.Play(context.Background())
	h.waitStarted(t)
	_ = h.engine.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	var ops []string
	for _, tr := range h.transitions {
		ops = append(ops, tr.Operation)
	}
	want := []string{"parse", "render", "play", "stop"}
	if len(ops) != len(want) {
		t.Fatalf("expected %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ops)
		}
	}
	if last := h.transitions[len(h.transitions)-1]; last.From != PhasePlaying || last.To != PhaseRendered {
		t.Fatalf("unexpected stop transition %+v", last)
	}
	if len(h.snapshots) != len(want) {
		t.Fatalf("expected %d change notifications, got %d", len(want), len(h.snapshots))
	}
}

func TestRenderMetrics(t *testing.T) {
	h := newHarness(t, nil)
	snap := h.render(t)
	_, _ = h.engine.Render(context.Background(), filepath.Join(h.dir, "missing.phx"))

	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	data := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			data[m.Name] = m.Data
		}
	}
	renders, ok := data["phonex.render.total"].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("render counter missing: %#v", data["phonex.render.total"])
	}
	var total int64
	for _, dp := range renders.DataPoints {
		total += dp.Value
	}
	if total != 2 || len(renders.DataPoints) != 2 {
		t.Fatalf("expected one ok and one error render, got %+v", renders.DataPoints)
	}
	if _, ok := data["phonex.render.duration"].(metricdata.Histogram[float64]); !ok {
		t.Fatal("render duration histogram missing")
	}
	samples, ok := data["phonex.cache.samples"].(metricdata.Gauge[int64])
	if !ok || len(samples.DataPoints) != 1 {
		t.Fatalf("cache gauge missing: %#v", data["phonex.cache.samples"])
	}
	if samples.DataPoints[0].Value != 0 {
		t.Fatalf("failed render should empty the cache gauge, got %d (had %d)", samples.DataPoints[0].Value, snap.Samples)
	}
}
