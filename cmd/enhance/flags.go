package main

import (
	"fmt"
	"os"

	"github.com/shinyyama/abracadabra/internal/imageutil"
	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/shinyyama/abracadabra/internal/session"
	"github.com/spf13/cobra"
)

type flags struct {
	input       string
	output      string
	model       string
	printPrompt bool

	background string
	palette    string
	effect     string
	text       string
	font       string
	fontSize   string
	fontColor  string
}

func (f *flags) register(cmd *cobra.Command) {
	d := model.DefaultSettings()
	fs := cmd.Flags()
	fs.StringVarP(&f.input, "input", "i", "", "source photo (PNG, JPEG or GIF)")
	fs.StringVarP(&f.output, "output", "o", "", "where to write the result (default enhanced-product.<ext>)")
	fs.StringVar(&f.model, "model", "", "override GEMINI_MODEL")
	fs.BoolVar(&f.printPrompt, "print-prompt", false, "print the instruction text and exit without calling the service")

	fs.StringVar(&f.background, "background", d.BackgroundStyle, "background style")
	fs.StringVar(&f.palette, "palette", d.ColorPalette, "color palette")
	fs.StringVar(&f.effect, "effect", d.SpecialEffect, "special effect")
	fs.StringVar(&f.text, "text", d.ProductText, "text overlay; empty for none")
	fs.StringVar(&f.font, "font", d.FontStyle, "font style for the overlay")
	fs.StringVar(&f.fontSize, "font-size", d.FontSize, "font size for the overlay")
	fs.StringVar(&f.fontColor, "font-color", d.FontColor, "font color for the overlay")
}

// apply records the flag values as the controller's current settings.
func (f flags) apply(ctrl *session.Controller) error {
	s := ctrl.Settings()
	for _, kv := range []struct{ field, value string }{
		{model.FieldBackgroundStyle, f.background},
		{model.FieldColorPalette, f.palette},
		{model.FieldSpecialEffect, f.effect},
		{model.FieldProductText, f.text},
		{model.FieldFontStyle, f.font},
		{model.FieldFontSize, f.fontSize},
		{model.FieldFontColor, f.fontColor},
	} {
		var err error
		if s, err = s.With(kv.field, kv.value); err != nil {
			return err
		}
	}
	ctrl.Record(s)
	return nil
}

func loadImage(ctrl *session.Controller, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	img, err := imageutil.ReadSource(file, "", imageutil.AdvisoryMaxBytes)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	ctrl.SetImage(*img)
	return nil
}
