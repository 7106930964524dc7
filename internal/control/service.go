// Package control exposes a session engine over NATS request/reply and
// publishes its status.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/phonex/internal/bus"
	"github.com/loqalabs/phonex/internal/bytecode"
	"github.com/loqalabs/phonex/internal/legacy"
	"github.com/loqalabs/phonex/internal/phoneme"
	"github.com/loqalabs/phonex/internal/protocol"
	"github.com/loqalabs/phonex/internal/session"
	"github.com/loqalabs/phonex/internal/spec"
)

const defaultTimeout = 60 * time.Second

// Engine is the session surface the control bus drives.
type Engine interface {
	Parse(ctx context.Context, text string) (phoneme.Sequence, error)
	LoadBytecode(path string) (phoneme.Sequence, error)
	LoadLegacy(path string) (phoneme.Sequence, error)
	SaveBytecode(path string) error
	SaveLegacy(path string) error
	Render(ctx context.Context, path string) (session.Snapshot, error)
	Play(ctx context.Context) (*session.Playback, error)
	Stop() error
	ChangeVoice(name string) error
	SetSpeed(factor float64) error
	ExportWAV(path string) error
	Snapshot() session.Snapshot
}

type handler func(ctx context.Context, data []byte) protocol.Reply

// Service answers command subjects and publishes status events.
type Service struct {
	bus       *bus.Client
	engine    Engine
	prefix    string
	sessionID string
	timeout   time.Duration
	subs      []*nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewService binds engine to the bus. timeout bounds each command; zero
// means one minute.
func NewService(parent context.Context, busClient *bus.Client, engine Engine, prefix, sessionID string, timeout time.Duration, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		bus:       busClient,
		engine:    engine,
		prefix:    prefix,
		sessionID: sessionID,
		timeout:   timeout,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.With(slog.String("component", "control")),
	}
}

func (s *Service) handlers() map[string]handler {
	return map[string]handler{
		protocol.SubjectParse:      s.handleParse,
		protocol.SubjectLoad:       s.pathHandler(func(_ context.Context, p string) error { _, err := s.engine.LoadBytecode(p); return err }),
		protocol.SubjectLoadLegacy: s.pathHandler(func(_ context.Context, p string) error { _, err := s.engine.LoadLegacy(p); return err }),
		protocol.SubjectSave:       s.pathHandler(func(_ context.Context, p string) error { return s.engine.SaveBytecode(p) }),
		protocol.SubjectSaveLegacy: s.pathHandler(func(_ context.Context, p string) error { return s.engine.SaveLegacy(p) }),
		protocol.SubjectRender:     s.pathHandler(func(ctx context.Context, p string) error { _, err := s.engine.Render(ctx, p); return err }),
		protocol.SubjectExport:     s.pathHandler(func(_ context.Context, p string) error { return s.engine.ExportWAV(p) }),
		protocol.SubjectPlay:       s.handlePlay,
		protocol.SubjectStop:       func(context.Context, []byte) protocol.Reply { return s.reply(s.engine.Stop()) },
		protocol.SubjectVoice:      s.handleVoice,
		protocol.SubjectSpeed:      s.handleSpeed,
		protocol.SubjectState:      func(context.Context, []byte) protocol.Reply { return s.reply(nil) },
	}
}

// Start subscribes to every command subject.
func (s *Service) Start() error {
	for name, h := range s.handlers() {
		subject := protocol.Subject(s.prefix, name)
		sub, err := s.bus.Conn().Subscribe(subject, s.dispatch(name, h))
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.logger.Info("control bus ready", slog.String("prefix", s.prefix), slog.String("session_id", s.sessionID))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.unsubscribe()
	s.wg.Wait()
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Healthy() bool { return len(s.subs) > 0 && s.bus.Healthy() }

// dispatch runs each command on its own goroutine so a long render does not
// hold up the subscription.
func (s *Service) dispatch(name string, h handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
			defer cancel()

			rep := h(ctx, msg.Data)
			if !rep.OK {
				s.logger.Warn("command failed", slog.String("command", name), slog.String("error", rep.Error))
			}
			if msg.Reply == "" {
				return
			}
			data, err := json.Marshal(rep)
			if err != nil {
				s.logger.Warn("failed to marshal reply", slogError(err))
				return
			}
			if err := msg.Respond(data); err != nil {
				s.logger.Warn("failed to send reply", slog.String("command", name), slogError(err))
			}
		}()
	}
}

func (s *Service) handleParse(ctx context.Context, data []byte) protocol.Reply {
	var req protocol.ParseRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return badRequest(err)
	}
	seq, err := s.engine.Parse(ctx, req.Text)
	if err != nil {
		return s.reply(err)
	}
	rep := s.reply(nil)
	rep.Readable = spec.ToReadable(seq)
	return rep
}

func (s *Service) pathHandler(op func(ctx context.Context, path string) error) handler {
	return func(ctx context.Context, data []byte) protocol.Reply {
		var req protocol.PathRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return badRequest(err)
		}
		if req.Path == "" {
			return badRequest(errors.New("path required"))
		}
		return s.reply(op(ctx, req.Path))
	}
}

func (s *Service) handlePlay(ctx context.Context, _ []byte) protocol.Reply {
	_, err := s.engine.Play(ctx)
	return s.reply(err)
}

func (s *Service) handleVoice(_ context.Context, data []byte) protocol.Reply {
	var req protocol.VoiceRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return badRequest(err)
	}
	return s.reply(s.engine.ChangeVoice(req.Voice))
}

func (s *Service) handleSpeed(_ context.Context, data []byte) protocol.Reply {
	var req protocol.SpeedRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return badRequest(err)
	}
	return s.reply(s.engine.SetSpeed(req.Speed))
}

func (s *Service) reply(err error) protocol.Reply {
	st := s.status(s.engine.Snapshot())
	if err != nil {
		return protocol.Reply{Error: err.Error(), Code: ErrorCode(err), Status: &st}
	}
	return protocol.Reply{OK: true, Status: &st}
}

func badRequest(err error) protocol.Reply {
	return protocol.Reply{Error: err.Error(), Code: protocol.CodeBadRequest}
}

// Publish sends snap on the status subject. It is safe to call from the
// engine's change hook.
func (s *Service) Publish(snap session.Snapshot) {
	if err := s.bus.Publish(protocol.Subject(s.prefix, protocol.SubjectStatus), s.status(snap)); err != nil {
		s.logger.Warn("failed to publish status", slogError(err))
	}
}

func (s *Service) status(snap session.Snapshot) protocol.Status {
	return Status(s.sessionID, snap)
}

// Status converts an engine snapshot to its wire form.
func Status(sessionID string, snap session.Snapshot) protocol.Status {
	return protocol.Status{
		SessionID:    sessionID,
		Phase:        snap.Phase,
		Specs:        snap.Specs,
		SpecDuration: snap.SpecDuration,
		Voice:        snap.Voice,
		Speed:        snap.Speed,
		SampleRate:   snap.SampleRate,
		Samples:      snap.Samples,
		AudioSeconds: snap.AudioSeconds,
		Playing:      snap.Playing,
		Rendering:    snap.Rendering,
		Timestamp:    time.Now().UTC(),
	}
}

// ErrorCode classifies err for remote callers.
func ErrorCode(err error) string {
	var (
		parseErr *spec.ParseError
		synthErr *session.SynthesisError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &parseErr):
		return protocol.CodeParse
	case errors.Is(err, bytecode.ErrCorruptBytecode):
		return protocol.CodeCorrupt
	case errors.As(err, &synthErr):
		return protocol.CodeSynthesis
	case errors.Is(err, os.ErrNotExist):
		return protocol.CodeNotFound
	case errors.Is(err, legacy.ErrEmptyStream):
		return protocol.CodeEmptyStream
	case errors.Is(err, session.ErrNoSpecs):
		return protocol.CodeNoSpecs
	case errors.Is(err, session.ErrNotRendered):
		return protocol.CodeNotRendered
	case errors.Is(err, session.ErrAlreadyPlaying):
		return protocol.CodeAlreadyPlaying
	case errors.Is(err, session.ErrBusy):
		return protocol.CodeBusy
	case errors.Is(err, session.ErrUnknownVoice):
		return protocol.CodeUnknownVoice
	case errors.Is(err, session.ErrInvalidSpeed):
		return protocol.CodeInvalidSpeed
	}
	return protocol.CodeInternal
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
