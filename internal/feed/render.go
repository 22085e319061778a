package feed

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// JPEGQuality matches the quality the camera side encodes with.
const JPEGQuality = 85

// Box is one labelled rectangle in x1,y1,x2,y2 pixels.
type Box struct {
	Label      string
	Confidence float64
	Rect       [4]int
}

// ZoneOverlay is the translucent counting band.
type ZoneOverlay struct {
	X       int
	Width   int
	Color   string
	Opacity float64
}

// Scene describes a frame drawn by the hub when no camera image is shown.
type Scene struct {
	Width      int
	Height     int
	Background color.RGBA
	Title      string
	Lines      []string
	Zone       *ZoneOverlay
	Boxes      []Box
	BoxColor   string
	ShowBoxes  bool
	ShowLabels bool
	ShowConf   bool
	Footer     string
}

var (
	// InfoBackground is used for status placeholders.
	InfoBackground = color.RGBA{R: 30, G: 30, B: 40, A: 255}
	// ErrorBackground is used when the camera feed is unavailable.
	ErrorBackground = color.RGBA{R: 40, G: 20, B: 20, A: 255}
	// SimulationBackground is used in simulation mode.
	SimulationBackground = color.RGBA{R: 235, G: 235, B: 235, A: 255}
)

// ParseHex parses #rrggbb. Invalid input yields fallback.
func ParseHex(s string, fallback color.RGBA) color.RGBA {
	if len(s) != 7 || s[0] != '#' {
		return fallback
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// Render draws the scene and encodes it as JPEG.
func Render(s Scene) ([]byte, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("render: bad frame size %dx%d", s.Width, s.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: s.Background}, image.Point{}, draw.Src)

	text := textColor(s.Background)
	if z := s.Zone; z != nil && z.Width > 0 {
		zc := ParseHex(z.Color, color.RGBA{R: 255, A: 255})
		band := image.Rect(z.X, 0, z.X+z.Width, s.Height)
		mask := &image.Uniform{C: color.Alpha{A: uint8(clamp01(z.Opacity) * 255)}}
		draw.DrawMask(img, band, &image.Uniform{C: zc}, image.Point{}, mask, image.Point{}, draw.Over)
		outline(img, band, zc, 2)
		label(img, "COUNTING ZONE", z.X+4, 16, zc)
	}
	if s.ShowBoxes {
		bc := ParseHex(s.BoxColor, color.RGBA{G: 255, A: 255})
		for _, b := range s.Boxes {
			r := image.Rect(b.Rect[0], b.Rect[1], b.Rect[2], b.Rect[3])
			outline(img, r, bc, 2)
			if !s.ShowLabels {
				continue
			}
			caption := b.Label
			if s.ShowConf {
				caption = fmt.Sprintf("%s %.2f", b.Label, b.Confidence)
			}
			label(img, caption, r.Min.X+2, max(12, r.Min.Y-4), bc)
		}
	}
	if s.Title != "" {
		center(img, s.Title, s.Height/2-20, text)
	}
	for i, line := range s.Lines {
		center(img, line, s.Height/2+10+i*18, text)
	}
	if s.Footer != "" {
		label(img, s.Footer, 8, s.Height-10, text)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("render: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp01(v float64) float64 { return min(1, max(0, v)) }

func textColor(bg color.RGBA) color.RGBA {
	if int(bg.R)+int(bg.G)+int(bg.B) > 3*128 {
		return color.RGBA{R: 20, G: 20, B: 20, A: 255}
	}
	return color.RGBA{R: 230, G: 230, B: 230, A: 255}
}

func outline(img *image.RGBA, r image.Rectangle, c color.RGBA, width int) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	u := &image.Uniform{C: c}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}

func label(img *image.RGBA, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: c},
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func center(img *image.RGBA, s string, y int, c color.RGBA) {
	w := font.MeasureString(basicfont.Face7x13, s).Ceil()
	label(img, s, (img.Bounds().Dx()-w)/2, y, c)
}
