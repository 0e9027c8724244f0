package main

import (
	"encoding/base64"
	"errors"
	"image"
	"math"
	"testing"
)

func TestImageStoreSaveAndLoad48(t *testing.T) {
	store := newImageStore(t.TempDir())

	filename, err := store.Save("ABC123", "alice", testImageData(t, 120))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filename != "ABC123_alice.jpg" {
		t.Fatalf("filename = %q, want ABC123_alice.jpg", filename)
	}

	face, err := store.Load48("ABC123", "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if face.W != faceSize || face.H != faceSize {
		t.Fatalf("face dimensions = %dx%d, want %dx%d", face.W, face.H, faceSize, faceSize)
	}

	// JPEG round-trip of a uniform frame stays close to the input shade.
	want := 120.0 / 255
	for i, v := range face.Pix {
		if math.Abs(v-want) > 0.05 {
			t.Fatalf("pix[%d] = %v, want ~%v", i, v, want)
		}
	}
}

func TestImageStoreLoadMissingIsNoFace(t *testing.T) {
	store := newImageStore(t.TempDir())

	_, err := store.Load48("ABC123", "ghost")
	if err == nil {
		t.Fatal("expected error for missing image")
	}

	var infErr *InferenceError
	if !errors.As(err, &infErr) || infErr.Kind != ErrNoFace {
		t.Fatalf("error = %v, want kind %v", err, ErrNoFace)
	}
}

func TestImageStoreSaveRejectsGarbage(t *testing.T) {
	store := newImageStore(t.TempDir())

	tests := []struct {
		name string
		data string
	}{
		{"invalid base64", "not base64!!!"},
		{"undecodable image", base64.StdEncoding.EncodeToString([]byte("junk, not an image"))},
	}

	for _, tc := range tests {
		_, err := store.Save("ABC123", "alice", tc.data)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}

		var infErr *InferenceError
		if !errors.As(err, &infErr) || infErr.Kind != ErrDecode {
			t.Fatalf("%s: error = %v, want kind %v", tc.name, err, ErrDecode)
		}
	}
}

func TestImageStoreDeleteLobby(t *testing.T) {
	store := newImageStore(t.TempDir())

	if _, err := store.Save("ABC123", "alice", testImageData(t, 80)); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.DeleteLobby("ABC123"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Load48("ABC123", "alice"); err == nil {
		t.Fatal("image survived lobby deletion")
	}
}

func TestDecodeFaceFromDataURL(t *testing.T) {
	face, err := decodeFace(testImageData(t, 200))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if face.W != faceSize || face.H != faceSize {
		t.Fatalf("face dimensions = %dx%d, want %dx%d", face.W, face.H, faceSize, faceSize)
	}

	want := 200.0 / 255
	if math.Abs(face.Pix[0]-want) > 0.05 {
		t.Fatalf("pix[0] = %v, want ~%v", face.Pix[0], want)
	}
}

func TestThumbnailPreservesAspectRatio(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"wide", 1000, 600, 500, 300},
		{"tall", 600, 1000, 300, 500},
		{"within bounds", 400, 300, 400, 300},
	}

	for _, tc := range tests {
		src := image.NewRGBA(image.Rect(0, 0, tc.w, tc.h))
		dst := thumbnail(src, thumbnailMax)

		bounds := dst.Bounds()
		if bounds.Dx() != tc.wantW || bounds.Dy() != tc.wantH {
			t.Fatalf("%s: thumbnail = %dx%d, want %dx%d", tc.name, bounds.Dx(), bounds.Dy(), tc.wantW, tc.wantH)
		}
	}
}
