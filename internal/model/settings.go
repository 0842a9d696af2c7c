package model

import (
	"errors"
	"fmt"
)

var ErrUnknownField = errors.New("unknown settings field")

// Settings is one immutable snapshot of the user's styling choices.
// Methods take value receivers and return copies; a Settings is never edited in place.
type Settings struct {
	ProductText     string `json:"productText"`
	FontStyle       string `json:"fontStyle"`
	FontSize        string `json:"fontSize"`
	FontColor       string `json:"fontColor"`
	BackgroundStyle string `json:"backgroundStyle"`
	ColorPalette    string `json:"colorPalette"`
	SpecialEffect   string `json:"specialEffect"`
}

const (
	FieldProductText     = "productText"
	FieldFontStyle       = "fontStyle"
	FieldFontSize        = "fontSize"
	FieldFontColor       = "fontColor"
	FieldBackgroundStyle = "backgroundStyle"
	FieldColorPalette    = "colorPalette"
	FieldSpecialEffect   = "specialEffect"
)

func DefaultSettings() Settings {
	return Settings{
		ProductText:     "",
		FontStyle:       "Inter (Sans-serif)",
		FontSize:        "Medium",
		FontColor:       "#FFFFFF",
		BackgroundStyle: "Light Gradient",
		ColorPalette:    "Default",
		SpecialEffect:   "None",
	}
}

// With returns a copy of s with the named field set to value.
func (s Settings) With(field, value string) (Settings, error) {
	switch field {
	case FieldProductText:
		s.ProductText = value
	case FieldFontStyle:
		s.FontStyle = value
	case FieldFontSize:
		s.FontSize = value
	case FieldFontColor:
		s.FontColor = value
	case FieldBackgroundStyle:
		s.BackgroundStyle = value
	case FieldColorPalette:
		s.ColorPalette = value
	case FieldSpecialEffect:
		s.SpecialEffect = value
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return s, nil
}
