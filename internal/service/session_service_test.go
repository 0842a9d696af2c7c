package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/shinyyama/abracadabra/internal/repository"
	"github.com/shinyyama/abracadabra/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubTransformer struct {
	out *model.EncodedImage
	err error
}

func (s *stubTransformer) Transform(ctx context.Context, img model.EncodedImage, instruction string) (*model.EncodedImage, error) {
	return s.out, s.err
}

type memGenerations struct {
	mu    sync.Mutex
	rows  []model.Generation
	noDB  bool
	calls int
}

func (m *memGenerations) Create(ctx context.Context, g *model.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.noDB {
		return repository.ErrDBNotReady
	}
	g.ID = uint64(len(m.rows) + 1)
	m.rows = append(m.rows, *g)
	return nil
}

func (m *memGenerations) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Generation
	for _, g := range m.rows {
		if g.SessionID == sessionID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memGenerations) SetDB(db *gorm.DB) {}

type fakePublisher struct {
	path        string
	data        []byte
	contentType string
	err         error
}

func (f *fakePublisher) Publish(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	f.path, f.data, f.contentType = objectPath, data, contentType
	if f.err != nil {
		return "", f.err
	}
	return "https://example.test/" + objectPath, nil
}

var jpeg = model.Image{Data: []byte("photo"), MIMEType: "image/jpeg"}

func okTransformer() *stubTransformer {
	return &stubTransformer{out: &model.EncodedImage{
		Data:     base64.StdEncoding.EncodeToString([]byte("enhanced")),
		MIMEType: "image/png",
	}}
}

func newTestService(client session.Transformer, gens *memGenerations, pub *fakePublisher) SessionService {
	if gens == nil {
		gens = &memGenerations{}
	}
	if pub == nil {
		return NewSessionService(repository.NewSessionRepository(), gens, client, "test-model", nil)
	}
	return NewSessionService(repository.NewSessionRepository(), gens, client, "test-model", pub)
}

func TestSessionService_Ownership(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(okTransformer(), nil, nil)

	owned, err := svc.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Get(ctx, owned.ID, "bob")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, owned.ID, "alice")
	assert.NoError(t, err)

	open, err := svc.Create(ctx, "")
	require.NoError(t, err)
	_, err = svc.Get(ctx, open.ID, "anyone")
	assert.NoError(t, err)

	_, err = svc.Get(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, owned.ID, "bob"), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, owned.ID, "alice"))
	assert.ErrorIs(t, svc.Delete(ctx, owned.ID, "alice"), ErrNotFound)
}

func TestSessionService_SettingsAndHistory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(okTransformer(), nil, nil)
	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)

	st, err := svc.UpdateSetting(ctx, sess.ID, "", model.FieldBackgroundStyle, "Wood Grain")
	require.NoError(t, err)
	assert.Equal(t, "Wood Grain", st.Settings.BackgroundStyle)
	assert.True(t, st.CanUndo)

	_, err = svc.UpdateSetting(ctx, sess.ID, "", "lighting", "harsh")
	assert.ErrorIs(t, err, model.ErrUnknownField)

	prompt, err := svc.Prompt(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.Contains(t, prompt, "wood grain texture")

	st, err = svc.Undo(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), st.Settings)

	st, err = svc.Redo(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Wood Grain", st.Settings.BackgroundStyle)
}

func TestSessionService_EnhanceRecordsGeneration(t *testing.T) {
	ctx := context.Background()
	gens := &memGenerations{}
	svc := newTestService(okTransformer(), gens, nil)
	sess, err := svc.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.SetImage(ctx, sess.ID, "alice", jpeg)
	require.NoError(t, err)
	st, err := svc.Enhance(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.True(t, st.HasResult)

	img, err := svc.Result(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("enhanced"), img.Data)

	rows, err := svc.Generations(ctx, sess.ID, "alice", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.GenerationSucceeded, rows[0].Status)
	assert.Equal(t, "test-model", rows[0].Model)
	assert.Equal(t, "alice", rows[0].OwnerUID)
	assert.Equal(t, "image/png", rows[0].ResultMIME)
	assert.Equal(t, len("photo"), rows[0].SourceBytes)
	assert.Equal(t, "Light Gradient", rows[0].BackgroundStyle)
}

func TestSessionService_EnhanceFailure(t *testing.T) {
	ctx := context.Background()
	gens := &memGenerations{}
	svc := newTestService(&stubTransformer{err: errors.New("503 overloaded")}, gens, nil)
	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)
	_, err = svc.SetImage(ctx, sess.ID, "", jpeg)
	require.NoError(t, err)

	st, err := svc.Enhance(ctx, sess.ID, "")
	assert.ErrorIs(t, err, session.ErrTransformFailed)
	assert.Equal(t, session.MsgTransformFailed, st.Error)

	require.Len(t, gens.rows, 1)
	assert.Equal(t, model.GenerationFailed, gens.rows[0].Status)
	assert.Contains(t, gens.rows[0].ErrorDetail, "503 overloaded")

	_, err = svc.Result(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestSessionService_EnhanceWithoutImageSkipsLog(t *testing.T) {
	ctx := context.Background()
	gens := &memGenerations{}
	svc := newTestService(okTransformer(), gens, nil)
	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)

	st, err := svc.Enhance(ctx, sess.ID, "")
	assert.ErrorIs(t, err, session.ErrNoSourceImage)
	assert.Equal(t, session.MsgNoSourceImage, st.Error)
	assert.Zero(t, gens.calls)

	_, err = svc.Source(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestSessionService_EnhanceWithoutDatabase(t *testing.T) {
	ctx := context.Background()
	gens := &memGenerations{noDB: true}
	svc := newTestService(okTransformer(), gens, nil)
	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)
	_, err = svc.SetImage(ctx, sess.ID, "", jpeg)
	require.NoError(t, err)

	_, err = svc.Enhance(ctx, sess.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, 1, gens.calls)
}

func TestSessionService_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		svc := newTestService(okTransformer(), nil, nil)
		_, err := svc.Publish(ctx, "any", "")
		assert.ErrorIs(t, err, ErrPublishDisabled)
	})

	t.Run("no result", func(t *testing.T) {
		svc := newTestService(okTransformer(), nil, &fakePublisher{})
		sess, err := svc.Create(ctx, "")
		require.NoError(t, err)
		_, err = svc.Publish(ctx, sess.ID, "")
		assert.ErrorIs(t, err, ErrNoResult)
	})

	t.Run("uploads result", func(t *testing.T) {
		pub := &fakePublisher{}
		svc := newTestService(okTransformer(), nil, pub)
		sess, err := svc.Create(ctx, "")
		require.NoError(t, err)
		_, err = svc.SetImage(ctx, sess.ID, "", jpeg)
		require.NoError(t, err)
		_, err = svc.Enhance(ctx, sess.ID, "")
		require.NoError(t, err)

		url, err := svc.Publish(ctx, sess.ID, "")
		require.NoError(t, err)
		assert.Contains(t, url, "enhanced/"+sess.ID+"/")
		assert.Equal(t, []byte("enhanced"), pub.data)
		assert.Equal(t, "image/png", pub.contentType)
	})
}

func TestSessionService_Sweep(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(okTransformer(), nil, nil).(*sessionService)
	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)

	assert.Zero(t, svc.Sweep(ctx, time.Hour))
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, svc.Sweep(ctx, time.Hour))

	_, err = svc.Get(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
		{"é", 1, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, utf8.ValidString(got))
	}
}
