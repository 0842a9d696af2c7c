package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/abracadabra/internal/ai"
)

type OptionsHandler struct{}

func NewOptionsHandler() *OptionsHandler {
	return &OptionsHandler{}
}

// List returns every recognized option value with its default.
func (h *OptionsHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, ai.Catalog())
}
