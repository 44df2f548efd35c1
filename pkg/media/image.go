package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // decoders
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

// AvatarOptions bounds the normalised avatar.
type AvatarOptions struct {
	MaxPixels int
	Quality   float32
}

// NormalizeAvatar decodes a jpeg/png/webp image, fits it inside MaxPixels
// square and re-encodes it as lossy WebP.
func NormalizeAvatar(r io.Reader, opts AvatarOptions) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, appErrors.Upload(err, "read avatar")
	}
	img, err := decodeImage(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "avatar must be a jpeg, png or webp image")
	}

	if opts.MaxPixels <= 0 {
		opts.MaxPixels = 512
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 80
	}
	b := img.Bounds()
	if b.Dx() > opts.MaxPixels || b.Dy() > opts.MaxPixels {
		img = imaging.Fit(img, opts.MaxPixels, opts.MaxPixels, imaging.Lanczos)
	}

	buf := &bytes.Buffer{}
	if err := webp.Encode(buf, img, &webp.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeImage(raw []byte) (image.Image, error) {
	head := raw
	if len(head) > 512 {
		head = head[:512]
	}
	if strings.Contains(http.DetectContentType(head), "webp") {
		return webp.Decode(bytes.NewReader(raw))
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}
