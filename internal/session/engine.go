package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/phonex/internal/audio"
	"github.com/loqalabs/phonex/internal/bytecode"
	"github.com/loqalabs/phonex/internal/legacy"
	"github.com/loqalabs/phonex/internal/phoneme"
	"github.com/loqalabs/phonex/internal/player"
	"github.com/loqalabs/phonex/internal/spec"
	"github.com/loqalabs/phonex/internal/synth"
	"github.com/loqalabs/phonex/internal/voice"
)

const (
	DefaultSampleRate = 48000
	MinSpeed          = 0.5
	MaxSpeed          = 2.0

	recordTimeout = 2 * time.Second
)

// Options wires an Engine to its collaborators.
type Options struct {
	Parser *spec.Parser
	Voices *voice.Registry
	Synth  synth.Synthesizer
	Player player.Player

	SampleRate int
	Speed      float64
	// TempDir holds playback WAV files; empty means os.TempDir.
	TempDir string

	Logger        *slog.Logger
	MeterProvider metric.MeterProvider
	Recorder      Recorder
	// OnChange receives a snapshot after every committed transition. It is
	// called without the engine lock held.
	OnChange func(Snapshot)
}

// Transition describes one engine operation for journals and observers.
type Transition struct {
	Operation string
	From      Phase
	To        Phase
	Specs     int
	Samples   int
	Voice     string
	Err       error
	At        time.Time
}

// Recorder persists transitions.
type Recorder interface {
	Record(ctx context.Context, t Transition) error
}

// Snapshot is a read-only view of the engine.
type Snapshot struct {
	Phase        string  `json:"phase"`
	Specs        int     `json:"specs"`
	SpecDuration float64 `json:"spec_duration"`
	Voice        string  `json:"voice"`
	Speed        float64 `json:"speed"`
	SampleRate   int     `json:"sample_rate"`
	Samples      int     `json:"samples"`
	AudioSeconds float64 `json:"audio_seconds"`
	Playing      bool    `json:"playing"`
	Rendering    bool    `json:"rendering"`
}

// RenderResult reports a RenderAsync completion.
type RenderResult struct {
	Snapshot Snapshot
	Err      error
}

// Engine owns one session's State. All transitions go through its mutex;
// rendering and playback run outside it.
type Engine struct {
	parser   *spec.Parser
	voices   *voice.Registry
	synth    synth.Synthesizer
	player   player.Player
	tempDir  string
	log      *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	recorder Recorder
	onChange func(Snapshot)

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	sampleRate int
	speed      float64
	rendering  bool
	closed     bool
	playback   *Playback
	pending    []Transition
}

// New builds an Engine. Parser, Voices, Synth and Player are required.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Parser == nil:
		return nil, errors.New("session: parser required")
	case opts.Voices == nil:
		return nil, errors.New("session: voice registry required")
	case opts.Synth == nil:
		return nil, errors.New("session: synthesizer required")
	case opts.Player == nil:
		return nil, errors.New("session: player required")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Speed == 0 {
		opts.Speed = 1
	}
	if err := checkSpeed(opts.Speed); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	metrics, err := NewMetrics(opts.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("session metrics: %w", err)
	}

	base, cancel := context.WithCancel(context.Background())
	e := &Engine{
		parser:     opts.Parser,
		voices:     opts.Voices,
		synth:      opts.Synth,
		player:     opts.Player,
		tempDir:    opts.TempDir,
		log:        opts.Logger.With(slog.String("component", "session")),
		metrics:    metrics,
		tracer:     otel.Tracer(instrumentationName),
		recorder:   opts.Recorder,
		onChange:   opts.OnChange,
		base:       base,
		cancel:     cancel,
		sampleRate: opts.SampleRate,
		speed:      opts.Speed,
	}
	e.state.Voice = opts.Voices.Current().Name
	if err := metrics.observe(e); err != nil {
		e.log.Warn("failed to register session gauges", slogError(err))
	}
	return e, nil
}

// Close stops any playback and waits for workers to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}

// Parse turns text into specs with the active voice and makes them current.
// Errors leave the state unchanged.
func (e *Engine) Parse(ctx context.Context, text string) (phoneme.Sequence, error) {
	seq, err := e.parser.Parse(ctx, text, e.voices.Current())

	e.mu.Lock()
	defer e.unlock()
	if err != nil {
		e.fail("parse", err)
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if _, err := e.apply("parse", Parsed{Specs: seq}); err != nil {
		e.fail("parse", err)
		return nil, err
	}
	return seq.Clone(), nil
}

// LoadBytecode makes the specs of a PHX file current.
func (e *Engine) LoadBytecode(path string) (phoneme.Sequence, error) {
	seq, err := bytecode.ReadFile(path)

	e.mu.Lock()
	defer e.unlock()
	if err != nil {
		e.fail("load_bytecode", err)
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if _, err := e.apply("load_bytecode", Loaded{Specs: seq}); err != nil {
		e.fail("load_bytecode", err)
		return nil, err
	}
	return seq.Clone(), nil
}

// LoadLegacy makes the specs of a PHN file current. A voice named in the
// header is activated when known, which drops the cache even if decoding
// then fails.
func (e *Engine) LoadLegacy(path string) (phoneme.Sequence, error) {
	e.mu.Lock()
	defer e.unlock()
	if err := e.guard(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("read legacy %s: %w", path, err)
		e.fail("load_legacy", err)
		return nil, err
	}

	before := e.voices.Current().Name
	seq, hdr, err := legacy.Decode(data, e.voices)
	after := e.voices.Current().Name
	if after != before {
		if _, verr := e.apply("voice", VoiceChanged{Voice: after}); verr != nil {
			return nil, verr
		}
	}
	if hdr.Voice != "" && hdr.Voice != after {
		e.log.Warn("legacy header names unknown voice", slog.String("voice", hdr.Voice), slog.String("active", after))
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", path, err)
		e.fail("load_legacy", err)
		return nil, err
	}
	if _, err := e.apply("load_legacy", Loaded{Specs: seq}); err != nil {
		e.fail("load_legacy", err)
		return nil, err
	}
	return seq.Clone(), nil
}

// SaveBytecode writes the current specs as PHX.
func (e *Engine) SaveBytecode(path string) error {
	specs, err := e.currentSpecs()
	if err != nil {
		return err
	}
	return bytecode.WriteFile(path, specs)
}

// SaveLegacy writes the current specs as PHN with a header naming the
// active voice.
func (e *Engine) SaveLegacy(path string) error {
	specs, err := e.currentSpecs()
	if err != nil {
		return err
	}
	data, err := legacy.Encode(specs, e.voices.Current().Name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write legacy %s: %w", path, err)
	}
	return nil
}

// Specs returns a copy of the current specs.
func (e *Engine) Specs() phoneme.Sequence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Specs.Clone()
}

// Readable renders the current specs in the editable text format.
func (e *Engine) Readable() (string, error) {
	specs, err := e.currentSpecs()
	if err != nil {
		return "", err
	}
	return spec.ToReadable(specs), nil
}

func (e *Engine) currentSpecs() (phoneme.Sequence, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.state.Specs) == 0 {
		return nil, ErrNoSpecs
	}
	return e.state.Specs, nil
}

// Render decodes the PHX file at path, synthesizes it with the active voice,
// applies the speed factor and caches the result. On failure the cache is
// cleared and the current specs are kept.
func (e *Engine) Render(ctx context.Context, path string) (Snapshot, error) {
	e.mu.Lock()
	if err := e.guard(); err != nil {
		e.mu.Unlock()
		return Snapshot{}, err
	}
	if e.state.Playing {
		e.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	e.rendering = true
	v, rate, speed := e.voices.Current(), e.sampleRate, e.speed
	e.mu.Unlock()

	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "session.Render", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("voice", v.Name),
		attribute.Float64("speed", speed),
		attribute.Int("sample_rate", rate),
	))
	specs, buf, err := e.render(ctx, span, path, v, rate, speed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	e.metrics.RenderDuration.Record(ctx, time.Since(start).Seconds(), statusAttr(err))
	e.metrics.Renders.Add(ctx, 1, statusAttr(err))

	e.mu.Lock()
	defer e.unlock()
	e.rendering = false
	if err == nil {
		_, err = e.apply("render", Rendered{Specs: specs, Buffer: buf})
	}
	if err != nil {
		e.state, _, _ = e.state.Apply(RenderFailed{})
		e.fail("render", err)
		e.log.Warn("render failed", slog.String("path", path), slogError(err))
		return e.snapshotLocked(), err
	}
	e.log.Info("rendered",
		slog.String("path", path),
		slog.Int("specs", len(specs)),
		slog.Int("samples", buf.Len()),
		slog.Duration("audio", buf.Duration()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return e.snapshotLocked(), nil
}

func (e *Engine) render(ctx context.Context, span trace.Span, path string, v *voice.Voice, rate int, speed float64) (phoneme.Sequence, *audio.Buffer, error) {
	specs, err := bytecode.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(specs) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", path, &bytecode.CorruptError{Record: -1, Reason: "no records"})
	}
	span.AddEvent("decoded", trace.WithAttributes(attribute.Int("specs", len(specs))))

	raw, err := e.synth.Synthesize(ctx, synth.Request{Specs: specs, Voice: v, SampleRate: rate})
	if err != nil {
		return nil, nil, &SynthesisError{Err: err}
	}
	if raw == nil {
		return nil, nil, &SynthesisError{Err: errors.New("synthesizer returned no audio")}
	}
	if raw.SampleRate <= 0 {
		raw.SampleRate = rate
	}
	span.AddEvent("synthesized", trace.WithAttributes(attribute.Int("samples", raw.Len())))

	samples, err := audio.ChangeSpeed(raw.Samples, speed)
	if err != nil {
		return nil, nil, err
	}
	span.AddEvent("resampled", trace.WithAttributes(attribute.Int("samples", len(samples))))
	return specs, &audio.Buffer{Samples: samples, SampleRate: raw.SampleRate}, nil
}

// RenderAsync runs Render on its own goroutine. The channel receives exactly
// one result and is then closed.
func (e *Engine) RenderAsync(ctx context.Context, path string) <-chan RenderResult {
	out := make(chan RenderResult, 1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(out)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(e.base, cancel)
		defer stop()
		snap, err := e.Render(ctx, path)
		out <- RenderResult{Snapshot: snap, Err: err}
	}()
	return out
}

// ChangeVoice activates a registered voice. Specs are kept; the cache is
// dropped.
func (e *Engine) ChangeVoice(name string) error {
	e.mu.Lock()
	defer e.unlock()
	if err := e.guard(); err != nil {
		return err
	}
	if !e.voices.SetCurrent(name) {
		err := fmt.Errorf("%w: %q", ErrUnknownVoice, name)
		e.fail("voice", err)
		return err
	}
	_, err := e.apply("voice", VoiceChanged{Voice: e.voices.Current().Name})
	return err
}

// SetSpeed sets the factor applied by the next render.
func (e *Engine) SetSpeed(factor float64) error {
	if err := checkSpeed(factor); err != nil {
		return err
	}
	e.mu.Lock()
	e.speed = factor
	e.mu.Unlock()
	return nil
}

func checkSpeed(factor float64) error {
	if math.IsNaN(factor) || factor < MinSpeed || factor > MaxSpeed {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, factor)
	}
	return nil
}

// ExportWAV writes the cached buffer as 16-bit mono PCM.
func (e *Engine) ExportWAV(path string) error {
	e.mu.Lock()
	buf := e.state.Buffer
	e.mu.Unlock()
	if buf == nil {
		return ErrNotRendered
	}
	return audio.WriteWAVFile(path, buf)
}

// Snapshot returns the current view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// State returns a copy of the raw state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:        e.state.Phase().String(),
		Specs:        len(e.state.Specs),
		SpecDuration: e.state.Specs.TotalDuration(),
		Voice:        e.state.Voice,
		Speed:        e.speed,
		SampleRate:   e.sampleRate,
		Playing:      e.state.Playing,
		Rendering:    e.rendering,
	}
	if b := e.state.Buffer; b != nil {
		s.Samples = b.Len()
		s.SampleRate = b.SampleRate
		s.AudioSeconds = b.Duration().Seconds()
	}
	return s
}

func (e *Engine) gaugeCounts() (samples, playing int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Playing {
		playing = 1
	}
	return int64(e.state.Buffer.Len()), playing
}

// guard rejects mutations while closed or while a render is in flight.
// Callers hold e.mu.
func (e *Engine) guard() error {
	if e.closed {
		return ErrClosed
	}
	if e.rendering {
		return ErrBusy
	}
	return nil
}

// apply commits ev and carries out a resulting stop. Callers hold e.mu.
func (e *Engine) apply(op string, ev Event) (Command, error) {
	from := e.state.Phase()
	next, cmd, err := e.state.Apply(ev)
	if err != nil {
		return nil, err
	}
	e.state = next
	if stop, ok := cmd.(StopPlayback); ok {
		e.cancelPlayback(stop.Generation)
	}
	e.pending = append(e.pending, e.transition(op, from, nil))
	return cmd, nil
}

// fail queues a failed operation for the journal. Callers hold e.mu.
func (e *Engine) fail(op string, err error) {
	e.pending = append(e.pending, e.transition(op, e.state.Phase(), err))
}

func (e *Engine) transition(op string, from Phase, err error) Transition {
	return Transition{
		Operation: op,
		From:      from,
		To:        e.state.Phase(),
		Specs:     len(e.state.Specs),
		Samples:   e.state.Buffer.Len(),
		Voice:     e.state.Voice,
		Err:       err,
		At:        time.Now().UTC(),
	}
}

// unlock releases e.mu and then delivers queued transitions.
func (e *Engine) unlock() {
	pending := e.pending
	e.pending = nil
	var snap Snapshot
	if len(pending) > 0 {
		snap = e.snapshotLocked()
	}
	e.mu.Unlock()

	changed := false
	for _, t := range pending {
		e.publish(t)
		if t.Err == nil {
			changed = true
		}
	}
	if changed && e.onChange != nil {
		e.onChange(snap)
	}
}

func (e *Engine) publish(t Transition) {
	if t.Err != nil {
		e.log.Debug("operation failed", slog.String("op", t.Operation), slogError(t.Err))
	} else {
		e.log.Debug("transition",
			slog.String("op", t.Operation),
			slog.String("from", t.From.String()),
			slog.String("to", t.To.String()),
		)
	}
	if e.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := e.recorder.Record(ctx, t); err != nil {
		e.log.Warn("failed to record transition", slog.String("op", t.Operation), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
