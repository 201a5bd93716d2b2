package qrscan

import (
	"image"

	"golang.org/x/image/draw"
)

// Surface is an off-screen grayscale buffer frames are copied into before
// decoding. Frames larger than maxEdge on either side are scaled down.
type Surface struct {
	maxEdge int
	buf     *image.Gray
}

func NewSurface(maxEdge int) *Surface {
	return &Surface{maxEdge: maxEdge}
}

// Draw copies frame onto the surface and returns it. The returned image
// is reused by the next call.
func (s *Surface) Draw(frame image.Image) *image.Gray {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	if s.maxEdge > 0 && (w > s.maxEdge || h > s.maxEdge) {
		if w >= h {
			h = max(h*s.maxEdge/w, 1)
			w = s.maxEdge
		} else {
			w = max(w*s.maxEdge/h, 1)
			h = s.maxEdge
		}
	}
	if s.buf == nil || s.buf.Rect.Dx() != w || s.buf.Rect.Dy() != h {
		s.buf = image.NewGray(image.Rect(0, 0, w, h))
	}
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(s.buf, s.buf.Rect, frame, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(s.buf, s.buf.Rect, frame, b, draw.Src, nil)
	}
	return s.buf
}
