package session

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/shinyyama/abracadabra/internal/ai"
	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransformer struct {
	out        *model.EncodedImage
	err        error
	calls      int
	lastImage  model.EncodedImage
	lastPrompt string
	// started/release make the call block until the test lets it finish.
	started chan struct{}
	release chan struct{}
}

func (f *fakeTransformer) Transform(ctx context.Context, img model.EncodedImage, instruction string) (*model.EncodedImage, error) {
	f.calls++
	f.lastImage = img
	f.lastPrompt = instruction
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.out, f.err
}

var photo = model.Image{Data: []byte("source"), MIMEType: "image/jpeg"}

func TestController_SubmitWithoutImage(t *testing.T) {
	fake := &fakeTransformer{}
	c := NewController(fake)

	attempt, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoSourceImage)
	assert.Nil(t, attempt)
	assert.Zero(t, fake.calls)

	st := c.State()
	assert.Equal(t, MsgNoSourceImage, st.Error)
	assert.False(t, st.Loading)
	assert.False(t, st.HasResult)
}

func TestController_SubmitSuccess(t *testing.T) {
	fake := &fakeTransformer{out: &model.EncodedImage{
		Data:     base64.StdEncoding.EncodeToString([]byte("enhanced")),
		MIMEType: "image/png",
	}}
	c := NewController(fake)
	c.SetImage(photo)

	attempt, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, attempt)

	assert.Equal(t, "c291cmNl", fake.lastImage.Data)
	assert.Equal(t, "image/jpeg", fake.lastImage.MIMEType)
	assert.Equal(t, ai.BuildPrompt(model.DefaultSettings()), fake.lastPrompt)

	res, ok := c.Result()
	require.True(t, ok)
	assert.Equal(t, []byte("enhanced"), res.Data)
	assert.Equal(t, "image/png", res.MIMEType)

	st := c.State()
	assert.True(t, st.HasResult)
	assert.Empty(t, st.Error)
	assert.False(t, st.Loading)
}

func TestController_SubmitUsesCurrentSettings(t *testing.T) {
	fake := &fakeTransformer{out: &model.EncodedImage{Data: "eA=="}}
	c := NewController(fake)
	c.SetImage(photo)

	_, err := c.UpdateSetting(model.FieldBackgroundStyle, "Marble")
	require.NoError(t, err)
	_, err = c.UpdateSetting(model.FieldBackgroundStyle, "Solid Black")
	require.NoError(t, err)
	c.Undo()

	_, err = c.Submit(context.Background())
	require.NoError(t, err)
	assert.Contains(t, fake.lastPrompt, "white marble texture")

	res, ok := c.Result()
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", res.MIMEType, "missing result type falls back to the source type")
}

func TestController_SubmitFailure(t *testing.T) {
	for name, fake := range map[string]*fakeTransformer{
		"service error": {err: errors.New("quota exceeded")},
		"bad payload":   {out: &model.EncodedImage{Data: "***", MIMEType: "image/png"}},
	} {
		t.Run(name, func(t *testing.T) {
			c := NewController(fake)
			c.SetImage(photo)
			before := c.Settings()

			attempt, err := c.Submit(context.Background())
			assert.ErrorIs(t, err, ErrTransformFailed)
			require.NotNil(t, attempt)
			assert.Error(t, attempt.Err)

			st := c.State()
			assert.Equal(t, MsgTransformFailed, st.Error)
			assert.False(t, st.HasResult)
			assert.False(t, st.Loading)
			assert.True(t, st.HasImage, "source survives a failure")
			assert.Equal(t, before, st.Settings)
		})
	}
}

func TestController_NewImageClearsResult(t *testing.T) {
	fake := &fakeTransformer{out: &model.EncodedImage{Data: "eA==", MIMEType: "image/png"}}
	c := NewController(fake)
	c.SetImage(photo)
	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.True(t, c.State().HasResult)

	c.SetImage(model.Image{Data: []byte("other"), MIMEType: "image/png"})
	st := c.State()
	assert.False(t, st.HasResult)
	assert.Equal(t, "image/png", st.ImageMIME)

	c.ClearImage()
	assert.False(t, c.State().HasImage)
}

func TestController_OneSubmissionAtATime(t *testing.T) {
	fake := &fakeTransformer{
		out:     &model.EncodedImage{Data: "eA==", MIMEType: "image/png"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewController(fake)
	c.SetImage(photo)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-fake.started

	assert.True(t, c.State().Loading)
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(fake.release)
	require.NoError(t, <-done)
	assert.False(t, c.State().Loading)
	assert.Equal(t, 1, fake.calls)
}

func TestController_ImageReplacedDuringFlight(t *testing.T) {
	fake := &fakeTransformer{
		out:     &model.EncodedImage{Data: "eA==", MIMEType: "image/png"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewController(fake)
	c.SetImage(photo)

	done := make(chan *Attempt, 1)
	go func() {
		attempt, _ := c.Submit(context.Background())
		done <- attempt
	}()
	<-fake.started
	c.SetImage(model.Image{Data: []byte("newer"), MIMEType: "image/gif"})
	close(fake.release)

	attempt := <-done
	require.NotNil(t, attempt)
	assert.True(t, attempt.Discarded)
	assert.False(t, c.State().HasResult)
}

func TestController_SubmitIgnoresCallerCancellation(t *testing.T) {
	fake := &fakeTransformer{out: &model.EncodedImage{Data: "eA==", MIMEType: "image/png"}}
	c := NewController(fake)
	c.SetImage(photo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Submit(ctx)
	require.NoError(t, err)
	assert.True(t, c.State().HasResult)
}

func TestController_HistoryOperations(t *testing.T) {
	c := NewController(&fakeTransformer{})

	_, err := c.UpdateSetting("shadow", "soft")
	assert.ErrorIs(t, err, model.ErrUnknownField)
	assert.Equal(t, 1, c.State().HistoryLen)

	_, err = c.UpdateSetting(model.FieldProductText, "Sale")
	require.NoError(t, err)
	st := c.State()
	assert.True(t, st.CanUndo)
	assert.False(t, st.CanRedo)
	assert.Contains(t, c.Prompt(), `Add the text "Sale"`)

	assert.Equal(t, model.DefaultSettings(), c.Undo())
	assert.Equal(t, "Sale", c.Redo().ProductText)

	next := c.Settings()
	next.FontColor = "#00FF00"
	c.Record(next)
	assert.Equal(t, 3, c.State().HistoryLen)
	assert.Equal(t, "#00FF00", c.Settings().FontColor)
}

type panickingTransformer struct{}

func (panickingTransformer) Transform(ctx context.Context, img model.EncodedImage, instruction string) (*model.EncodedImage, error) {
	panic("transport exploded")
}

func TestController_SubmitNilResponse(t *testing.T) {
	c := NewController(&fakeTransformer{})
	c.SetImage(photo)

	var (
		attempt *Attempt
		err     error
	)
	require.NotPanics(t, func() { attempt, err = c.Submit(context.Background()) })
	assert.ErrorIs(t, err, ErrTransformFailed)
	assert.ErrorIs(t, err, ai.ErrNoImageData)
	require.NotNil(t, attempt)

	st := c.State()
	assert.False(t, st.Loading)
	assert.False(t, st.HasResult)
	assert.Equal(t, MsgTransformFailed, st.Error)
}

func TestController_PanickingTransportReleasesSession(t *testing.T) {
	c := NewController(panickingTransformer{})
	c.SetImage(photo)

	assert.Panics(t, func() { _, _ = c.Submit(context.Background()) })

	st := c.State()
	assert.False(t, st.Loading)
	assert.Equal(t, MsgTransformFailed, st.Error)

	c.client = &fakeTransformer{out: &model.EncodedImage{Data: "eA==", MIMEType: "image/png"}}
	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, c.State().HasResult)
}

func TestController_FailureAfterImageReplacedIsDropped(t *testing.T) {
	fake := &fakeTransformer{
		err:     errors.New("deadline exceeded"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewController(fake)
	c.SetImage(photo)

	type outcome struct {
		attempt *Attempt
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		attempt, err := c.Submit(context.Background())
		done <- outcome{attempt, err}
	}()
	<-fake.started
	c.SetImage(model.Image{Data: []byte("newer"), MIMEType: "image/png"})
	close(fake.release)

	got := <-done
	assert.ErrorIs(t, got.err, ErrTransformFailed)
	require.NotNil(t, got.attempt)
	assert.True(t, got.attempt.Discarded)

	st := c.State()
	assert.Empty(t, st.Error, "new photo carries no stale failure")
	assert.False(t, st.Loading)
	assert.True(t, st.HasImage)
}
