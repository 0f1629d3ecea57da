package utils

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrNoFile       = errors.New("no file uploaded")
	ErrFileTooLarge = errors.New("file size exceeds limit")
	ErrNotAnImage   = errors.New("uploaded file is not an image")
	ErrImageTooBig  = errors.New("image dimensions exceed limit")
)

const (
	MaxFileSize = 5 * 1024 * 1024

	// MaxFramePixels bounds the decoded size of a single frame.
	MaxFramePixels = 4096 * 4096
)

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	ValidateImageFile(file *multipart.FileHeader) error
	ReadImageFile(file *multipart.FileHeader) ([]byte, error)
	DecodeFrame(data []byte) (image.Image, error)
	EncodeSnapshot(img image.Image, maxWidth, maxHeight int, quality int) ([]byte, error)
}

type utils struct {
	maxFileSize int64
	maxPixels   int
}

func New() IUtils {
	return &utils{
		maxFileSize: MaxFileSize,
		maxPixels:   MaxFramePixels,
	}
}

func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (u *utils) ValidateImageFile(file *multipart.FileHeader) error {
	if file == nil {
		return ErrNoFile
	}

	if file.Size > u.maxFileSize {
		return ErrFileTooLarge
	}

	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return ErrNotAnImage
	}

	return nil
}

func (u *utils) ReadImageFile(file *multipart.FileHeader) ([]byte, error) {
	if err := u.ValidateImageFile(file); err != nil {
		return nil, err
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return io.ReadAll(io.LimitReader(src, u.maxFileSize))
}

// DecodeFrame decodes a JPEG, PNG or WebP still. The header is checked
// first so an oversized frame is rejected before its pixels are allocated.
func (u *utils) DecodeFrame(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrNotAnImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Join(ErrNotAnImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > u.maxPixels/cfg.Height {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooBig, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Join(ErrNotAnImage, err)
	}

	return img, nil
}

// EncodeSnapshot downsizes img to fit inside maxWidth x maxHeight, keeping
// its aspect ratio, and encodes it as JPEG.
func (u *utils) EncodeSnapshot(img image.Image, maxWidth, maxHeight int, quality int) ([]byte, error) {
	dst := FitWithin(img, maxWidth, maxHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func FitWithin(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	origWidth, origHeight := bounds.Dx(), bounds.Dy()

	if origWidth <= maxWidth && origHeight <= maxHeight {
		return img
	}

	ratio := float64(origWidth) / float64(origHeight)
	newWidth, newHeight := maxWidth, int(float64(maxWidth)/ratio)
	if newHeight > maxHeight {
		newHeight = maxHeight
		newWidth = int(float64(maxHeight) * ratio)
	}

	dst := image.NewRGBA(image.Rect(0, 0, max(newWidth, 1), max(newHeight, 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

	return dst
}
