package session

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/loqalabs/phonex/internal/audio"
)

// Playback tracks one playback worker.
type Playback struct {
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}

	mu  sync.Mutex
	err error
}

// Generation identifies the playback within its engine.
func (p *Playback) Generation() uint64 { return p.generation }

// Done is closed when the worker has exited and its temp file is gone.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err is the player result once Done is closed. A stopped playback reports
// context.Canceled.
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Wait blocks until the worker exits or ctx ends.
func (p *Playback) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Play starts a worker for the cached buffer. The worker outlives ctx's
// cancellation; use Stop to end it.
func (e *Engine) Play(ctx context.Context) (*Playback, error) {
	e.mu.Lock()
	defer e.unlock()
	if err := e.guard(); err != nil {
		return nil, err
	}
	cmd, err := e.apply("play", PlayRequested{})
	if err != nil {
		e.fail("play", err)
		return nil, err
	}
	start := cmd.(StartPlayback)

	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pb := &Playback{generation: start.Generation, cancel: cancel, done: make(chan struct{})}
	e.playback = pb
	e.wg.Add(1)
	go e.runPlayback(pctx, pb, start.Buffer)
	return pb, nil
}

// Stop ends the current playback. It is a no-op when nothing plays.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}
	_, err := e.apply("stop", StopRequested{})
	return err
}

// cancelPlayback cancels the worker of gen. Callers hold e.mu.
func (e *Engine) cancelPlayback(gen uint64) {
	if e.playback != nil && e.playback.generation == gen {
		e.playback.cancel()
	}
}

func (e *Engine) runPlayback(ctx context.Context, pb *Playback, buf *audio.Buffer) {
	defer e.wg.Done()
	defer close(pb.done)
	defer pb.cancel()
	stop := context.AfterFunc(e.base, pb.cancel)
	defer stop()

	err := e.playBuffer(ctx, buf)

	pb.mu.Lock()
	pb.err = err
	pb.mu.Unlock()
	e.finishPlayback(ctx, pb, err)
}

// playBuffer only reads buf. The temp file is removed on every path.
func (e *Engine) playBuffer(ctx context.Context, buf *audio.Buffer) error {
	path, err := audio.WriteTempWAV(e.tempDir, buf)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			e.log.Warn("failed to remove playback file", slog.String("path", path), slogError(rerr))
		}
	}()
	return e.player.Play(ctx, path)
}

func (e *Engine) finishPlayback(ctx context.Context, pb *Playback, err error) {
	status := "ok"
	switch {
	case ctx.Err() != nil:
		status = "stopped"
	case err != nil:
		status = "error"
		e.log.Warn("playback failed", slog.Uint64("generation", pb.generation), slogError(err))
	}
	e.metrics.Playbacks.Add(context.Background(), 1, playbackStatus(status))

	e.mu.Lock()
	defer e.unlock()
	if e.playback == pb {
		e.playback = nil
	}
	if e.state.Playing && e.state.Generation() == pb.generation {
		_, _ = e.apply("playback_finished", PlaybackFinished{Generation: pb.generation})
	}
}
