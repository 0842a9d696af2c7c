package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/shinyyama/abracadabra/internal/repository"
	"github.com/shinyyama/abracadabra/internal/reqctx"
	"github.com/shinyyama/abracadabra/internal/session"
	"github.com/shinyyama/abracadabra/internal/storage"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrNoImage         = errors.New("no image in session")
	ErrNoResult        = errors.New("no enhanced image yet")
	ErrPublishDisabled = errors.New("publishing is not configured")
)

type SessionService interface {
	Create(ctx context.Context, ownerUID string) (*repository.Session, error)
	Get(ctx context.Context, id, uid string) (*repository.Session, error)
	Delete(ctx context.Context, id, uid string) error
	SetImage(ctx context.Context, id, uid string, img model.Image) (session.State, error)
	ClearImage(ctx context.Context, id, uid string) (session.State, error)
	Source(ctx context.Context, id, uid string) (model.Image, error)
	UpdateSetting(ctx context.Context, id, uid, field, value string) (session.State, error)
	Undo(ctx context.Context, id, uid string) (session.State, error)
	Redo(ctx context.Context, id, uid string) (session.State, error)
	Prompt(ctx context.Context, id, uid string) (string, error)
	Enhance(ctx context.Context, id, uid string) (session.State, error)
	Result(ctx context.Context, id, uid string) (model.Image, error)
	Publish(ctx context.Context, id, uid string) (string, error)
	Generations(ctx context.Context, id, uid string, limit int) ([]model.Generation, error)
	Sweep(ctx context.Context, maxIdle time.Duration) int
}

type sessionService struct {
	sessions    repository.SessionRepository
	generations repository.GenerationRepository
	client      session.Transformer
	model       string
	publisher   storage.Publisher
	now         func() time.Time
}

// NewSessionService wires the session store to one shared image client.
// publisher may be nil, in which case Publish returns ErrPublishDisabled.
func NewSessionService(
	sessions repository.SessionRepository,
	generations repository.GenerationRepository,
	client session.Transformer,
	modelName string,
	publisher storage.Publisher,
) SessionService {
	return &sessionService{
		sessions:    sessions,
		generations: generations,
		client:      client,
		model:       modelName,
		publisher:   publisher,
		now:         time.Now,
	}
}

func (s *sessionService) Create(ctx context.Context, ownerUID string) (*repository.Session, error) {
	sess, err := s.sessions.Create(ctx, ownerUID, session.NewController(s.client))
	if err != nil {
		return nil, err
	}
	log.Info().Str("rid", reqctx.RID(ctx)).Str("session", sess.ID).Msg("session created")
	return sess, nil
}

// Get loads a session and checks that uid may use it. Sessions created
// without an owner are open to anyone holding the id.
func (s *sessionService) Get(ctx context.Context, id, uid string) (*repository.Session, error) {
	sess, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sess.OwnerUID != "" && sess.OwnerUID != uid {
		return nil, ErrForbidden
	}
	return sess, nil
}

func (s *sessionService) Delete(ctx context.Context, id, uid string) error {
	if _, err := s.Get(ctx, id, uid); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *sessionService) SetImage(ctx context.Context, id, uid string, img model.Image) (session.State, error) {
	sess, err := s.Get(ctx, id, uid)
	if err != nil {
		return session.State{}, err
	}
	sess.Controller.SetImage(img)
	log.Info().Str("rid", reqctx.RID(ctx)).Str("session", id).
		Str("mime", img.MIMEType).Int("bytes", len(img.Data)).Msg("source image set")
	return sess.Controller.State(), nil
}

func (s *sessionService) ClearImage(ctx context.Context, id, uid string) (session.State, error) {
	sess, err := s.Get(ctx, id, uid)
	if err != nil {
		return session.State{}, err
	}
	sess.Controller.ClearImage()
	return sess.Controller.State(), nil
}

func (s *sessionService) Source(ctx context.Context, id, uid string) (model.Image, error) {
	sess, err := s.Get(ctx, id, uid)
	if err != nil {
		return model.Image{}, err
	}
	img, ok := sess.Controller.Source()
	if !ok {
		return model.Image{}, ErrNoImage
	}
	return img, nil
}

func (s *sessionService) UpdateSetting(ctx context.Context, id, uid, field, value string) (session.State, error) {
	sess, err := s.Get(ctx, id, uid)
	if err != nil {
		return session.State{}, err
	}
	if _, err := sess.Controller.UpdateSetting(field, value); err != nil {
		return session.State{}, err
	}
	return sess.Controller.State(), nil
}

func (s *sessionService) Undo(ctx context.Context, id, uid string) (session.State, error) {
	sess, err := s.Get(ctx, id, uid)
	if err != nil {
		return session.State{}, err
	}
	sess.Controller.Undo()
	return sess.Controller.State(), nil
}

func (s *sessionService) Redo(ctx context.Context, id, uid string) (session.State, error) {
	sess, err := s.Get(ctx, id, uid)
	if err != nil {
		return session.State{}, err
	}
	sess.Controller.Redo()
	return sess.Controller.State(), nil
}

func (s *sessionService) Prompt(ctx context.Context, id, uid string) (string, error) {
	sess, err := s.Get(ctx, id, uid)
	if err != nil {
		return "", err
	}
	return sess.Controller.Prompt(), nil
}

// Enhance submits the session's photo with its current settings and waits for
// the outcome. Every call that reached the image service is written to the
// generation log when a database is attached.
func (s *sessionService) Enhance(ctx context.Context, id, uid string) (session.State, error) {
	sess, err := s.Get(ctx, id, uid)
	if err != nil {
		return session.State{}, err
	}
	ctx = reqctx.WithSessionID(ctx, id)

	attempt, err := sess.Controller.Submit(ctx)
	if attempt != nil {
		s.record(ctx, sess, attempt)
	}
	return sess.Controller.State(), err
}

func (s *sessionService) record(ctx context.Context, sess *repository.Session, a *session.Attempt) {
	g := &model.Generation{
		SessionID:       sess.ID,
		OwnerUID:        sess.OwnerUID,
		Model:           s.model,
		Prompt:          a.Prompt,
		ProductText:     a.Settings.ProductText,
		FontStyle:       a.Settings.FontStyle,
		FontSize:        a.Settings.FontSize,
		FontColor:       a.Settings.FontColor,
		BackgroundStyle: a.Settings.BackgroundStyle,
		ColorPalette:    a.Settings.ColorPalette,
		SpecialEffect:   a.Settings.SpecialEffect,
		Status:          model.GenerationSucceeded,
		SourceMIME:      a.SourceMIME,
		SourceBytes:     a.SourceBytes,
		ElapsedMs:       a.Elapsed.Milliseconds(),
	}
	if a.Err != nil {
		g.Status = model.GenerationFailed
		g.ErrorDetail = truncate(a.Err.Error(), 1000)
	} else if a.Result != nil {
		g.ResultMIME = a.Result.MIMEType
		g.ResultBytes = len(a.Result.Data)
	}

	if err := s.generations.Create(context.WithoutCancel(ctx), g); err != nil {
		if errors.Is(err, repository.ErrDBNotReady) {
			log.Debug().Str("session", sess.ID).Msg("generation log skipped: db not ready")
			return
		}
		log.Warn().Str("rid", reqctx.RID(ctx)).Str("session", sess.ID).Err(err).Msg("generation log write failed")
	}
}

func (s *sessionService) Result(ctx context.Context, id, uid string) (model.Image, error) {
	sess, err := s.Get(ctx, id, uid)
	if err != nil {
		return model.Image{}, err
	}
	img, ok := sess.Controller.Result()
	if !ok {
		return model.Image{}, ErrNoResult
	}
	return img, nil
}

// Publish copies the current result to object storage and returns its URL.
func (s *sessionService) Publish(ctx context.Context, id, uid string) (string, error) {
	if s.publisher == nil {
		return "", ErrPublishDisabled
	}
	img, err := s.Result(ctx, id, uid)
	if err != nil {
		return "", err
	}
	url, err := s.publisher.Publish(ctx, storage.ObjectPath(id, img.MIMEType), img.Data, img.MIMEType)
	if err != nil {
		log.Error().Str("rid", reqctx.RID(ctx)).Str("session", id).Err(err).Msg("publish failed")
		return "", err
	}
	return url, nil
}

func (s *sessionService) Generations(ctx context.Context, id, uid string, limit int) ([]model.Generation, error) {
	if _, err := s.Get(ctx, id, uid); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.generations.ListBySession(ctx, id, limit)
}

// Sweep removes sessions idle for longer than maxIdle.
func (s *sessionService) Sweep(ctx context.Context, maxIdle time.Duration) int {
	n := s.sessions.DeleteIdle(ctx, s.now().Add(-maxIdle))
	if n > 0 {
		log.Info().Int("removed", n).Int("remaining", s.sessions.Count()).Msg("idle sessions swept")
	}
	return n
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
