package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/skip2/go-qrcode"

	"github.com/ivlev/clipton/internal/fonts"
	"github.com/ivlev/clipton/internal/layout"
)

var promoRed = color.RGBA{230, 33, 23, 255}

const dimAlpha = 170

// Promo is the full-screen subscribe frame shown between two clips.
type Promo struct {
	// Background is the frozen last frame; nil means plain black.
	Background image.Image
	// Asset replaces the drawn card when it loaded successfully.
	Asset      image.Image
	Prompt     string
	ChannelURL string
	// Fade is how much of the fade-in is still ahead, 1 at the first frame
	// and 0 once the background is fully dimmed.
	Fade float64
}

// RenderInterstitial draws the promo frame over a dimmed background.
func (c *Compositor) RenderInterstitial(dst *image.RGBA, p Promo) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)
	if p.Background != nil {
		c.guard("freeze", func() {
			draw.Draw(dst, dst.Bounds(), p.Background, p.Background.Bounds().Min, draw.Src)
		})
	}
	dim := color.RGBA{A: uint8(math.Round(lerp(dimAlpha, 0, easeInOutCubic(clamp01(p.Fade)))))}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(dim), image.Point{}, draw.Over)

	if p.Asset != nil && !p.Asset.Bounds().Empty() {
		ok := true
		c.guard("promo asset", func() {
			ok = false
			box := Rect{
				X: float64(c.width) * 0.05,
				Y: float64(c.height) * 0.05,
				W: float64(c.width) * 0.9,
				H: float64(c.height) * 0.9,
			}
			r := containRect(p.Asset.Bounds(), box)
			xdraw.ApproxBiLinear.Scale(dst, r.Image(), p.Asset, p.Asset.Bounds(), xdraw.Over, nil)
			ok = true
		})
		if ok {
			return
		}
	}
	c.guard("promo card", func() { c.drawPromoCard(dst, p) })
}

// drawPromoCard is the fallback when there is no usable asset: a red button
// with the prompt and, if known, a QR code for the channel.
func (c *Compositor) drawPromoCard(dst *image.RGBA, p Promo) {
	prompt := p.Prompt
	if prompt == "" {
		prompt = "SUBSCRIBE"
	}

	measure := fonts.Measurer(c.promoFace)
	buttonW := float64(c.width) * 0.8
	pad := c.px(40)
	lineH := c.px(promoSize * 1.2)
	lines := layout.Lines(prompt, buttonW-2*pad, measure)

	buttonH := float64(len(lines))*lineH + 2*pad
	qrSize := 0
	if p.ChannelURL != "" {
		qrSize = int(c.px(360))
	}
	gap := c.px(60)
	total := buttonH
	if qrSize > 0 {
		total += gap + float64(qrSize)
	}

	top := (float64(c.height) - total) / 2
	button := Rect{X: (float64(c.width) - buttonW) / 2, Y: top, W: buttonW, H: buttonH}.Image()
	mask := roundedRect{r: button, radius: int(c.px(36))}
	draw.DrawMask(dst, button, image.NewUniform(promoRed), image.Point{}, mask, button.Min, draw.Over)

	y := top + pad + lineH*0.8
	for _, line := range lines {
		seg := layout.Segment(line, "", measure, float64(c.width))
		drawOutlined(dst, c.promoFace, line, seg.StartX, y, white, c.px(strokeWidth)/2)
		y += lineH
	}

	if qrSize > 0 {
		qr, err := c.qr.image(p.ChannelURL, qrSize)
		if err != nil {
			c.logger.Warn("qr code skipped", "url", p.ChannelURL, "error", err)
			return
		}
		x := (c.width - qrSize) / 2
		qy := int(top + buttonH + gap)
		r := image.Rect(x, qy, x+qrSize, qy+qrSize)
		draw.Draw(dst, r, qr, qr.Bounds().Min, draw.Src)
	}
}

// qrCache keeps the last generated code; the URL does not change within a run.
type qrCache struct {
	url  string
	size int
	img  image.Image
}

func (q *qrCache) image(url string, size int) (image.Image, error) {
	if q.img != nil && q.url == url && q.size == size {
		return q.img, nil
	}
	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	q.url, q.size, q.img = url, size, code.Image(size)
	return q.img, nil
}
