package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// Classifier and drift input size: square single-channel frames.
const faceSize = 48

// Saved profile images are thumbnailed to fit this bounding box.
const thumbnailMax = 500

// Face is a grayscale image as row-major float samples in [0, 1].
type Face struct {
	W, H int
	Pix  []float64
}

func newFace(w, h int) *Face {
	return &Face{W: w, H: h, Pix: make([]float64, w*h)}
}

// ImageStore persists one profile photo per lobby+username under a
// per-lobby directory.
type ImageStore struct {
	root string
}

func newImageStore(root string) *ImageStore {
	return &ImageStore{root: root}
}

func (s *ImageStore) lobbyDir(lobbyCode string) string {
	return filepath.Join(s.root, lobbyCode)
}

func (s *ImageStore) imagePath(lobbyCode, username string) string {
	return filepath.Join(s.lobbyDir(lobbyCode), fmt.Sprintf("%s_%s.jpg", lobbyCode, username))
}

// Save decodes a base64 (optionally data-URL) image, thumbnails it, and
// writes it as JPEG. Returns the stored filename.
func (s *ImageStore) Save(lobbyCode, username, imageData string) (string, error) {
	raw, err := decodeBase64Image(imageData)
	if err != nil {
		return "", err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", decodeError(err)
	}

	if err := os.MkdirAll(s.lobbyDir(lobbyCode), 0o755); err != nil {
		return "", err
	}

	out, err := os.Create(s.imagePath(lobbyCode, username))
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := jpeg.Encode(out, thumbnail(img, thumbnailMax), &jpeg.Options{Quality: 85}); err != nil {
		return "", err
	}

	return filepath.Base(out.Name()), nil
}

// Load48 reads a stored image back as the fixed-size grayscale frame the
// classifier consumes.
func (s *ImageStore) Load48(lobbyCode, username string) (*Face, error) {
	raw, err := os.ReadFile(s.imagePath(lobbyCode, username))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, noFaceError(err)
		}
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, decodeError(err)
	}

	return faceFromImage(img), nil
}

// DeleteLobby removes every image stored for a lobby.
func (s *ImageStore) DeleteLobby(lobbyCode string) error {
	return os.RemoveAll(s.lobbyDir(lobbyCode))
}

// Cleanup removes the whole store; lobby state does not survive the
// process, so neither should its images.
func (s *ImageStore) Cleanup() error {
	return os.RemoveAll(s.root)
}

// decodeFace turns a base64 frame into the fixed-size grayscale input
// without persisting it.
func decodeFace(imageData string) (*Face, error) {
	raw, err := decodeBase64Image(imageData)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, decodeError(err)
	}

	return faceFromImage(img), nil
}

func decodeBase64Image(imageData string) ([]byte, error) {
	// Strip a data-URL prefix if present.
	if idx := strings.IndexByte(imageData, ','); idx >= 0 {
		imageData = imageData[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(imageData)
	if err != nil {
		return nil, decodeError(err)
	}
	return raw, nil
}

// faceFromImage resamples to faceSize x faceSize and converts to
// grayscale floats in [0, 1].
func faceFromImage(img image.Image) *Face {
	gray := image.NewGray(image.Rect(0, 0, faceSize, faceSize))
	draw.CatmullRom.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	face := newFace(faceSize, faceSize)
	for i, v := range gray.Pix {
		face.Pix[i] = float64(v) / 255
	}
	return face
}

// thumbnail shrinks an image to fit within max x max, preserving aspect
// ratio. Images already within bounds pass through untouched.
func thumbnail(img image.Image, max int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= max && h <= max {
		return img
	}

	scale := float64(max) / float64(w)
	if h > w {
		scale = float64(max) / float64(h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
