package qrscan

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/user/entity"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	want := entity.PublicProfile{Name: "Ada Lovelace", LocalOrganisation: "Analytical Society", WhatsappNumber: "+441234567"}

	raw, err := Encode(want, 300)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 300 {
		t.Fatalf("size = %v", b)
	}

	text, err := NewDecoder().Decode(NewSurface(1024).Draw(img))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := ParsePayload(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecodeBlankFrame(t *testing.T) {
	t.Parallel()
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	if _, err := NewDecoder().Decode(img); !errors.Is(err, ErrNoCode) {
		t.Fatalf("expected ErrNoCode, got %v", err)
	}
}

func TestSurfaceScalesDown(t *testing.T) {
	t.Parallel()
	s := NewSurface(1024)
	src := image.NewRGBA(image.Rect(0, 0, 4000, 2000))
	src.Set(0, 0, color.White)

	got := s.Draw(src)
	if b := got.Bounds(); b.Dx() != 1024 || b.Dy() != 512 {
		t.Fatalf("bounds = %v", b)
	}
	small := image.NewGray(image.Rect(10, 10, 50, 30))
	small.SetGray(10, 10, color.Gray{Y: 200})
	out := s.Draw(small)
	if b := out.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Fatalf("bounds = %v", b)
	}
	if out.GrayAt(0, 0).Y != 200 {
		t.Fatalf("pixel not copied: %v", out.GrayAt(0, 0))
	}
}
