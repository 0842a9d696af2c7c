package ai

import (
	"fmt"
	"strings"

	"github.com/shinyyama/abracadabra/internal/model"
)

type option struct {
	Name        string
	Instruction string
}

const (
	DefaultBackground = "Light Gradient"
	DefaultFontSize   = "Medium"
	NoEffect          = "None"
	DefaultPalette    = "Default"
)

// Tables are listed in the order the options are offered to the user.
var backgroundOptions = []option{
	{"Light Gradient", "Replace the background with a subtle, clean, light gray to white gradient."},
	{"Solid White", "Replace the background with a clean, solid white background (#FFFFFF)."},
	{"Solid Black", "Replace the background with a dramatic, solid black background (#000000)."},
	{"Transparent", "Replace the background, making it completely transparent (alpha channel). Ensure the output format supports transparency (like PNG)."},
	{"Wood Grain", "Replace the background with a realistic, high-quality light wood grain texture."},
	{"Marble", "Replace the background with an elegant, white marble texture with subtle gray veining."},
}

var paletteOptions = []option{
	{"Default", ""},
	{"Vibrant & Bold", "Adjust the overall color grading of the image to be vibrant and bold, with high contrast and saturated colors."},
	{"Pastel & Soft", "Adjust the overall color grading of the image to a soft, pastel color palette with gentle tones and low contrast."},
	{"Monochromatic Blues", "Apply a monochromatic color grading using shades of blue, creating a cool and cohesive look."},
	{"Earthy Tones", "Adjust the overall color grading to use warm, earthy tones like terracotta, olive green, and beige."},
	{"Cool & Professional", "Apply a cool color grading with an emphasis on blues and whites for a clean, professional, and corporate feel."},
}

var effectOptions = []option{
	{"None", ""},
	{"Water Splash", "Artistically add a dynamic splash of clean water around the product to give it a fresh, energetic feel. The splashes should look realistic and not obscure the product itself."},
	{"Smoke", "Incorporate subtle, elegant wisps of white smoke around the product to create a sense of mystery and sophistication. The smoke should enhance the product, not hide it."},
	{"Glitter", "Add a shower of elegant, fine glitter around the product. The glitter should appear realistic and magical, subtly catching the light without overwhelming the product."},
	{"Bokeh", "Create a beautiful bokeh effect in the background, with soft, out-of-focus light circles. This should give the image a dreamy and high-end photographic feel, making the product stand out."},
	{"Neon Glow", "Add a subtle neon glow effect that outlines the product. The glow should be a vibrant color that complements the product, giving it a futuristic and edgy look."},
	{"Vintage Film", "Apply a vintage film grain and a slightly faded, nostalgic color grading to the entire image. This should give the photo a classic, retro aesthetic, like a shot from an old movie."},
}

var fontSizeOptions = []option{
	{"Small", "a relatively small font size"},
	{"Medium", "a standard, medium font size"},
	{"Large", "a large, prominent font size"},
	{"Extra Large", "an extra large, attention-grabbing font size"},
}

// Font styles carry no instruction of their own; the name is quoted into the prompt.
var fontStyles = []string{
	"Inter (Sans-serif)",
	"Poppins (Bold)",
	"Poppins (Regular)",
	"Playfair Display (Serif)",
	"Montserrat (Bold)",
	"Roboto (Medium)",
	"Lato (Bold)",
	"Open Sans (Regular)",
	"Oswald (Condensed)",
	"Merriweather (Serif)",
	"Noto Sans (Clean)",
	"Source Code Pro (Monospace)",
}

var (
	backgroundPrompts = index(backgroundOptions)
	palettePrompts    = index(paletteOptions)
	effectPrompts     = index(effectOptions)
	fontSizePhrases   = index(fontSizeOptions)
)

const (
	isolateInstruction  = "Isolate the main product and completely remove the original background."
	lightingInstruction = "Adjust the lighting on the product to be bright and professional, as if shot in a studio, eliminating harsh shadows and adding soft highlights."
	enhanceInstruction  = "Enhance the product's colors and sharpness for a crisp, appealing look."
	textInstruction     = `Add the text "%s". Use the font style "%s", the color "%s", and %s. Position the text tastefully in a lower corner, ensuring it doesn't obstruct the product.`

	promptHeader = "Please transform this product photo into a professional e-commerce image. Perform the following actions:"
	promptFooter = "The final output must be only the image."
)

func index(opts []option) map[string]string {
	m := make(map[string]string, len(opts))
	for _, o := range opts {
		m[o.Name] = o.Instruction
	}
	return m
}

// BuildInstructions returns the ordered edit steps for s, without numbering.
// Unrecognized background and font size values fall back to their defaults;
// unrecognized palettes and effects add nothing.
func BuildInstructions(s model.Settings) []string {
	background, ok := backgroundPrompts[s.BackgroundStyle]
	if !ok {
		background = backgroundPrompts[DefaultBackground]
	}

	instructions := []string{isolateInstruction, background, lightingInstruction}

	if s.SpecialEffect != NoEffect {
		if effect := effectPrompts[s.SpecialEffect]; effect != "" {
			instructions = append(instructions, effect)
		}
	}
	if s.ColorPalette != DefaultPalette {
		if palette := palettePrompts[s.ColorPalette]; palette != "" {
			instructions = append(instructions, palette)
		}
	}

	instructions = append(instructions, enhanceInstruction)

	if s.ProductText != "" {
		size, ok := fontSizePhrases[s.FontSize]
		if !ok {
			size = fontSizePhrases[DefaultFontSize]
		}
		instructions = append(instructions, fmt.Sprintf(textInstruction, s.ProductText, s.FontStyle, s.FontColor, size))
	}
	return instructions
}

// BuildPrompt renders the instruction string sent alongside the source image.
// It is a pure function of s.
func BuildPrompt(s model.Settings) string {
	instructions := BuildInstructions(s)
	lines := make([]string, 0, len(instructions)+2)
	lines = append(lines, promptHeader)
	for i, inst := range instructions {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, inst))
	}
	lines = append(lines, promptFooter)
	return strings.Join(lines, "\n")
}

type OptionSet struct {
	Default string   `json:"default"`
	Values  []string `json:"values"`
}

type OptionCatalog struct {
	BackgroundStyle OptionSet `json:"backgroundStyle"`
	ColorPalette    OptionSet `json:"colorPalette"`
	SpecialEffect   OptionSet `json:"specialEffect"`
	FontStyle       OptionSet `json:"fontStyle"`
	FontSize        OptionSet `json:"fontSize"`
	FontColor       string    `json:"fontColor"`
}

// Catalog lists every value the prompt tables recognize, so a form can offer
// exactly those choices.
func Catalog() OptionCatalog {
	d := model.DefaultSettings()
	return OptionCatalog{
		BackgroundStyle: OptionSet{Default: d.BackgroundStyle, Values: names(backgroundOptions)},
		ColorPalette:    OptionSet{Default: d.ColorPalette, Values: names(paletteOptions)},
		SpecialEffect:   OptionSet{Default: d.SpecialEffect, Values: names(effectOptions)},
		FontStyle:       OptionSet{Default: d.FontStyle, Values: append([]string(nil), fontStyles...)},
		FontSize:        OptionSet{Default: d.FontSize, Values: names(fontSizeOptions)},
		FontColor:       d.FontColor,
	}
}

func names(opts []option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Name
	}
	return out
}
