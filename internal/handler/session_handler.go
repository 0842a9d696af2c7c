package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/imageutil"
	appmw "github.com/shinyyama/abracadabra/internal/middleware"
	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/shinyyama/abracadabra/internal/repository"
	"github.com/shinyyama/abracadabra/internal/reqctx"
	"github.com/shinyyama/abracadabra/internal/service"
	"github.com/shinyyama/abracadabra/internal/session"
	"github.com/shinyyama/abracadabra/internal/storage"
)

type SessionHandler struct {
	svc            service.SessionService
	maxUploadBytes int64
}

func NewSessionHandler(svc service.SessionService, maxUploadBytes int64) *SessionHandler {
	return &SessionHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

type SessionResponse struct {
	ID        string        `json:"id"`
	CreatedAt string        `json:"createdAt,omitempty"`
	State     session.State `json:"state"`
}

type UpdateSettingRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type PromptResponse struct {
	Prompt string `json:"prompt"`
}

type ImageResponse struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

type EnhanceResponse struct {
	State  session.State  `json:"state"`
	Result *ImageResponse `json:"result,omitempty"`
}

type PublishResponse struct {
	URL string `json:"url"`
}

type GenerationResponse struct {
	ID              uint64 `json:"id"`
	Model           string `json:"model"`
	Status          string `json:"status"`
	BackgroundStyle string `json:"backgroundStyle"`
	ColorPalette    string `json:"colorPalette"`
	SpecialEffect   string `json:"specialEffect"`
	ProductText     string `json:"productText,omitempty"`
	ResultMIME      string `json:"resultMimeType,omitempty"`
	ElapsedMs       int64  `json:"elapsedMs"`
	CreatedAt       string `json:"createdAt"`
}

type GenerationListResponse struct {
	Generations []GenerationResponse `json:"generations"`
}

func (h *SessionHandler) Create(c echo.Context) error {
	sess, err := h.svc.Create(c.Request().Context(), appmw.UID(c))
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, CodeInternal, "failed to create session")
	}
	return c.JSON(http.StatusCreated, SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		State:     sess.Controller.State(),
	})
}

func (h *SessionHandler) Get(c echo.Context) error {
	sess, err := h.svc.Get(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		State:     sess.Controller.State(),
	})
}

func (h *SessionHandler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id"), appmw.UID(c)); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) PutImage(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, CodeBadRequest, "multipart field \"image\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, CodeBadRequest, "failed to read upload")
	}
	defer f.Close()

	img, err := imageutil.ReadSource(f, fh.Header.Get("Content-Type"), h.maxUploadBytes)
	if err != nil {
		switch {
		case errors.Is(err, imageutil.ErrUnsupportedType):
			return errorJSON(c, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, "only PNG, JPEG and GIF images are supported")
		case errors.Is(err, imageutil.ErrEmpty):
			return errorJSON(c, http.StatusBadRequest, CodeBadRequest, "image is empty")
		default:
			return errorJSON(c, http.StatusBadRequest, CodeBadRequest, "failed to read upload")
		}
	}

	st, err := h.svc.SetImage(c.Request().Context(), c.Param("id"), appmw.UID(c), *img)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{ID: c.Param("id"), State: st})
}

func (h *SessionHandler) DeleteImage(c echo.Context) error {
	st, err := h.svc.ClearImage(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{ID: c.Param("id"), State: st})
}

func (h *SessionHandler) GetImage(c echo.Context) error {
	img, err := h.svc.Source(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Blob(http.StatusOK, img.MIMEType, img.Data)
}

func (h *SessionHandler) ImagePreview(c echo.Context) error {
	img, err := h.svc.Source(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return h.preview(c, img)
}

func (h *SessionHandler) UpdateSetting(c echo.Context) error {
	var req UpdateSettingRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, CodeBadRequest, "invalid json")
	}
	st, err := h.svc.UpdateSetting(c.Request().Context(), c.Param("id"), appmw.UID(c), req.Field, req.Value)
	if err != nil {
		if errors.Is(err, model.ErrUnknownField) {
			return errorJSON(c, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("unknown field %q", req.Field))
		}
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{ID: c.Param("id"), State: st})
}

func (h *SessionHandler) Undo(c echo.Context) error {
	st, err := h.svc.Undo(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{ID: c.Param("id"), State: st})
}

func (h *SessionHandler) Redo(c echo.Context) error {
	st, err := h.svc.Redo(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{ID: c.Param("id"), State: st})
}

func (h *SessionHandler) Prompt(c echo.Context) error {
	prompt, err := h.svc.Prompt(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, PromptResponse{Prompt: prompt})
}

// Enhance blocks until the image service answers. Validation failures and
// service failures both carry the user-facing message in the error envelope.
func (h *SessionHandler) Enhance(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	st, err := h.svc.Enhance(ctx, id, appmw.UID(c))
	switch {
	case errors.Is(err, session.ErrNoSourceImage):
		return errorJSON(c, http.StatusBadRequest, CodeNoImage, session.MsgNoSourceImage)
	case errors.Is(err, session.ErrBusy):
		return errorJSON(c, http.StatusConflict, CodeBusy, "an enhancement is already running for this session")
	case errors.Is(err, session.ErrTransformFailed):
		return errorJSON(c, http.StatusBadGateway, CodeEnhanceFailed, session.MsgTransformFailed)
	case err != nil:
		return h.fail(c, err)
	}

	resp := EnhanceResponse{State: st}
	if img, err := h.svc.Result(ctx, id, appmw.UID(c)); err == nil {
		enc := imageutil.Encode(img)
		resp.Result = &ImageResponse{Data: enc.Data, MIMEType: enc.MIMEType}
	}
	log.Info().Str("rid", reqctx.RID(ctx)).Str("session", id).Bool("has_result", resp.Result != nil).Msg("enhance complete")
	return c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) Result(c echo.Context) error {
	img, err := h.svc.Result(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	enc := imageutil.Encode(img)
	return c.JSON(http.StatusOK, ImageResponse{Data: enc.Data, MIMEType: enc.MIMEType})
}

func (h *SessionHandler) Download(c echo.Context) error {
	img, err := h.svc.Result(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", storage.DownloadFilename))
	return c.Blob(http.StatusOK, img.MIMEType, img.Data)
}

func (h *SessionHandler) ResultPreview(c echo.Context) error {
	img, err := h.svc.Result(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return h.preview(c, img)
}

func (h *SessionHandler) Publish(c echo.Context) error {
	url, err := h.svc.Publish(c.Request().Context(), c.Param("id"), appmw.UID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPublishDisabled):
			return errorJSON(c, http.StatusNotImplemented, CodeNotImplemented, "publishing is not configured")
		case errors.Is(err, service.ErrNoResult):
			return errorJSON(c, http.StatusConflict, CodeNoResult, "enhance the image before publishing")
		case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrForbidden):
			return h.fail(c, err)
		default:
			return errorJSON(c, http.StatusBadGateway, CodePublishFailed, "failed to publish image")
		}
	}
	return c.JSON(http.StatusOK, PublishResponse{URL: url})
}

func (h *SessionHandler) Generations(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.svc.Generations(c.Request().Context(), c.Param("id"), appmw.UID(c), limit)
	if err != nil {
		if errors.Is(err, repository.ErrDBNotReady) {
			return errorJSON(c, http.StatusServiceUnavailable, CodeDBUnavailable, "generation log is not available")
		}
		return h.fail(c, err)
	}
	resp := GenerationListResponse{Generations: make([]GenerationResponse, 0, len(list))}
	for i := range list {
		resp.Generations = append(resp.Generations, toGenerationResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) preview(c echo.Context, img model.Image) error {
	size, _ := strconv.Atoi(c.QueryParam("size"))
	thumb, err := imageutil.Thumbnail(img, size)
	if err != nil {
		log.Warn().Str("rid", reqctx.RID(c.Request().Context())).Err(err).Msg("preview failed")
		return errorJSON(c, http.StatusUnprocessableEntity, CodePreviewFailed, "image could not be decoded")
	}
	return c.Blob(http.StatusOK, "image/jpeg", thumb)
}

func (h *SessionHandler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, CodeNotFound, "session not found")
	case errors.Is(err, service.ErrForbidden):
		return errorJSON(c, http.StatusForbidden, CodeForbidden, "session belongs to another user")
	case errors.Is(err, service.ErrNoImage):
		return errorJSON(c, http.StatusNotFound, CodeNoImage, session.MsgNoSourceImage)
	case errors.Is(err, service.ErrNoResult):
		return errorJSON(c, http.StatusNotFound, CodeNoResult, "no enhanced image yet")
	default:
		log.Error().Str("rid", reqctx.RID(c.Request().Context())).Err(err).Msg("request failed")
		return errorJSON(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func toGenerationResponse(g *model.Generation) GenerationResponse {
	return GenerationResponse{
		ID:              g.ID,
		Model:           g.Model,
		Status:          g.Status,
		BackgroundStyle: g.BackgroundStyle,
		ColorPalette:    g.ColorPalette,
		SpecialEffect:   g.SpecialEffect,
		ProductText:     g.ProductText,
		ResultMIME:      g.ResultMIME,
		ElapsedMs:       g.ElapsedMs,
		CreatedAt:       g.CreatedAt.Format(time.RFC3339),
	}
}
