// Package session orchestrates one user's enhancement round trips: the
// selected photo, the settings history, and the single in-flight request.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/ai"
	"github.com/shinyyama/abracadabra/internal/history"
	"github.com/shinyyama/abracadabra/internal/imageutil"
	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/shinyyama/abracadabra/internal/reqctx"
)

var (
	ErrNoSourceImage   = errors.New("no source image selected")
	ErrBusy            = errors.New("enhancement already in progress")
	ErrTransformFailed = errors.New("image transformation failed")
)

// User-facing messages. Service errors are never shown verbatim.
const (
	MsgNoSourceImage   = "Please upload an image first."
	MsgTransformFailed = "Failed to enhance image. Please try again."
)

// Transformer is the remote image service.
type Transformer interface {
	Transform(ctx context.Context, img model.EncodedImage, instruction string) (*model.EncodedImage, error)
}

type Controller struct {
	client Transformer

	mu        sync.Mutex
	history   *history.History
	source    *model.Image
	sourceRev uint64
	result    *model.Image
	loading   bool
	errMsg    string
}

func NewController(client Transformer) *Controller {
	return &Controller{
		client:  client,
		history: history.New(model.DefaultSettings()),
	}
}

// State is a read-only view for rendering.
type State struct {
	Settings   model.Settings `json:"settings"`
	Cursor     int            `json:"historyIndex"`
	HistoryLen int            `json:"historyLength"`
	CanUndo    bool           `json:"canUndo"`
	CanRedo    bool           `json:"canRedo"`
	HasImage   bool           `json:"hasImage"`
	ImageMIME  string         `json:"imageMimeType,omitempty"`
	HasResult  bool           `json:"hasResult"`
	ResultMIME string         `json:"resultMimeType,omitempty"`
	Loading    bool           `json:"loading"`
	Error      string         `json:"error,omitempty"`
}

// Attempt describes one submission that reached the image service.
type Attempt struct {
	Settings    model.Settings
	Prompt      string
	SourceMIME  string
	SourceBytes int
	Result      *model.Image
	Elapsed     time.Duration
	Err         error
	// Discarded is set when the photo was replaced while the call was in flight.
	Discarded bool
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Settings:   c.history.Current(),
		Cursor:     c.history.Cursor(),
		HistoryLen: c.history.Len(),
		CanUndo:    c.history.CanUndo(),
		CanRedo:    c.history.CanRedo(),
		Loading:    c.loading,
		Error:      c.errMsg,
	}
	if c.source != nil {
		st.HasImage = true
		st.ImageMIME = c.source.MIMEType
	}
	if c.result != nil {
		st.HasResult = true
		st.ResultMIME = c.result.MIMEType
	}
	return st
}

// SetImage replaces the source photo. Any previous result and error are cleared;
// a request already in flight keeps running.
func (c *Controller) SetImage(img model.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = &model.Image{Data: append([]byte(nil), img.Data...), MIMEType: img.MIMEType}
	c.sourceRev++
	c.result = nil
	c.errMsg = ""
}

func (c *Controller) ClearImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = nil
	c.sourceRev++
	c.result = nil
	c.errMsg = ""
}

func (c *Controller) Source() (model.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return model.Image{}, false
	}
	return *c.source, true
}

func (c *Controller) Result() (model.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return model.Image{}, false
	}
	return *c.result, true
}

func (c *Controller) Settings() model.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Current()
}

// Record appends s as the newest snapshot.
func (c *Controller) Record(s model.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.Record(s)
}

// UpdateSetting copies the current snapshot with one field replaced and records it.
func (c *Controller) UpdateSetting(field, value string) (model.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := c.history.Current().With(field, value)
	if err != nil {
		return model.Settings{}, err
	}
	c.history.Record(next)
	return next, nil
}

func (c *Controller) Undo() model.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.Undo()
	return c.history.Current()
}

func (c *Controller) Redo() model.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.Redo()
	return c.history.Current()
}

// Prompt returns the instruction string the current settings would produce.
func (c *Controller) Prompt() string {
	return ai.BuildPrompt(c.Settings())
}

// Submit runs one enhancement with the current settings. Only one submission
// may be outstanding; a second call returns ErrBusy. Without a photo it fails
// with ErrNoSourceImage and the image service is not called.
//
// The returned Attempt is nil when the service was not called.
func (c *Controller) Submit(ctx context.Context) (*Attempt, error) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if c.source == nil {
		c.errMsg = MsgNoSourceImage
		c.mu.Unlock()
		return nil, ErrNoSourceImage
	}
	c.loading = true
	c.result = nil
	c.errMsg = ""
	src := *c.source
	rev := c.sourceRev
	settings := c.history.Current()
	c.mu.Unlock()

	attempt := &Attempt{
		Settings:    settings,
		Prompt:      ai.BuildPrompt(settings),
		SourceMIME:  src.MIMEType,
		SourceBytes: len(src.Data),
	}

	// A transport that panics must not leave the session marked as loading.
	settled := false
	defer func() {
		if settled {
			return
		}
		c.mu.Lock()
		c.loading = false
		if rev == c.sourceRev {
			c.errMsg = MsgTransformFailed
		}
		c.mu.Unlock()
	}()

	// A started submission runs to completion even if the caller goes away.
	callCtx := context.WithoutCancel(ctx)
	start := time.Now()
	out, err := c.client.Transform(callCtx, imageutil.Encode(src), attempt.Prompt)
	attempt.Elapsed = time.Since(start)
	if err == nil && out == nil {
		err = ai.ErrNoImageData
	}
	if err == nil {
		attempt.Result, err = imageutil.Decode(*out)
		if err == nil && attempt.Result.MIMEType == "" {
			attempt.Result.MIMEType = src.MIMEType
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	settled = true
	c.loading = false
	stale := rev != c.sourceRev

	if err != nil {
		attempt.Err = err
		attempt.Result = nil
		if stale {
			// The failure belongs to a photo that is no longer selected.
			attempt.Discarded = true
			log.Info().Str("rid", reqctx.RID(ctx)).Str("session", reqctx.SessionID(ctx)).
				Str("stage", "submit_discarded").Err(err).Msg("photo changed while enhancing; failure dropped")
			return attempt, fmt.Errorf("%w: %w", ErrTransformFailed, err)
		}
		c.result = nil
		c.errMsg = MsgTransformFailed
		log.Warn().Str("rid", reqctx.RID(ctx)).Str("session", reqctx.SessionID(ctx)).
			Str("stage", "submit_fail").Err(err).Msg("enhancement failed")
		return attempt, fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}
	if stale {
		attempt.Discarded = true
		log.Info().Str("rid", reqctx.RID(ctx)).Str("session", reqctx.SessionID(ctx)).
			Str("stage", "submit_discarded").Msg("photo changed while enhancing; result dropped")
		return attempt, nil
	}
	c.result = attempt.Result
	return attempt, nil
}
