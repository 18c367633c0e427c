package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"
)

// CaptureJPEGQuality is the fixed quality used when re-encoding a cropped
// camera frame.
const CaptureJPEGQuality = 92

// ErrNotAnImage reports an upload whose payload does not decode as a
// supported raster format.
var ErrNotAnImage = errors.New("invalid file type")

// EncodedImage is a self-describing image: MIME type plus raw bytes,
// renderable as a data URI for transport and in-memory display.
type EncodedImage struct {
	MIMEType string
	Data     []byte
}

// NewEncodedImage validates that data decodes as JPEG, PNG, GIF or WebP
// and returns it tagged with the detected MIME type. The declared content
// type, if any, is only a hint; the sniffed format wins.
func NewEncodedImage(data []byte, declaredType string) (*EncodedImage, error) {
	if len(data) == 0 {
		return nil, ErrNotAnImage
	}
	if declaredType != "" && !strings.HasPrefix(declaredType, "image/") {
		return nil, ErrNotAnImage
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	return &EncodedImage{MIMEType: "image/" + format, Data: data}, nil
}

// ParseDataURI decodes a data:<mime>;base64,<payload> string into an
// EncodedImage.
func ParseDataURI(uri string) (*EncodedImage, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URI", ErrNotAnImage)
	}
	mimeType, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return nil, fmt.Errorf("%w: missing base64 payload", ErrNotAnImage)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	return NewEncodedImage(data, mimeType)
}

// DataURI renders the image as a self-contained data URI.
func (e *EncodedImage) DataURI() string {
	return "data:" + e.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(e.Data)
}

// Bounds decodes just enough of the payload to report pixel dimensions.
func (e *EncodedImage) Bounds() (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(e.Data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// CenterSquareCrop crops a centered size x size region out of a raw camera
// frame, where size = min(width, height), and re-encodes it as JPEG at the
// fixed capture quality. Frames that are already square are still
// re-encoded so the camera path always emits JPEG.
func CenterSquareCrop(frame []byte) (*EncodedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode camera frame: %w", err)
	}

	b := img.Bounds()
	size := b.Dx()
	if b.Dy() < size {
		size = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-size)/2
	y0 := b.Min.Y + (b.Dy()-size)/2
	rect := image.Rect(x0, y0, x0+size, y0+size)

	cropped := cropRect(img, rect)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: CaptureJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode cropped frame: %w", err)
	}

	return &EncodedImage{MIMEType: "image/jpeg", Data: buf.Bytes()}, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func cropRect(img image.Image, rect image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(rect)
	}
	// Fallback for decoders whose concrete type lacks SubImage.
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			out.Set(x, y, img.At(rect.Min.X+x, rect.Min.Y+y))
		}
	}
	return out
}
