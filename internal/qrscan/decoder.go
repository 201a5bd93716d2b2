package qrscan

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode means the frame holds no readable QR code.
var ErrNoCode = errors.New("no qr code in frame")

// Decoder extracts the text of a QR code from an image.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

type zxingDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewDecoder returns a QR decoder backed by gozxing.
func NewDecoder() Decoder {
	return &zxingDecoder{
		reader: qrcode.NewQRCodeReader(),
		hints:  map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_TRY_HARDER: true},
	}
}

func (d *zxingDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoCode, err)
	}
	res, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		// not found, checksum and format failures all mean no usable code
		return "", fmt.Errorf("%w: %w", ErrNoCode, err)
	}
	return res.GetText(), nil
}
