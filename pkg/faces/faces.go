// Package faces runs face detection over cached media items and persists
// the results through the cache store. Detection itself is pluggable: the
// default engine is a pigo cascade loaded from OPENCV_HAARCASCADE_PATH, and
// tests or alternative engines inject their own detector function.
package faces

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/Christopher-Schulze/googlepicz/pkg/cache"
	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
	pigo "github.com/esimov/pigo/core"
)

// ModelPathEnv locates the face detection cascade.
const ModelPathEnv = "OPENCV_HAARCASCADE_PATH"

// minFaceQuality discards low-confidence cascade hits.
const minFaceQuality = 5.0

// ModelNotFoundError reports a missing or unreadable detection model.
type ModelNotFoundError struct {
	Path string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("faces: detection model not found at %q", e.Path)
}

// DetectionError reports a failure while running detection on an image.
type DetectionError struct {
	MediaItemID string
	Err         error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("faces: detection failed for %s: %v", e.MediaItemID, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// ImageSource maps a media item to a decodable local image, typically the
// thumbnail the image loader has already fetched.
type ImageSource func(ctx context.Context, item *photos.MediaItem) (image.Image, error)

// DetectFunc produces the face records for a media item.
type DetectFunc func(ctx context.Context, item *photos.MediaItem) ([]cache.Face, error)

// Recognizer detects faces and writes them through the cache.
type Recognizer struct {
	detect DetectFunc
}

// NewRecognizer loads the pigo cascade from cascadePath and builds a
// recognizer reading images through source. A missing or empty path yields a
// ModelNotFoundError.
func NewRecognizer(cascadePath string, source ImageSource) (*Recognizer, error) {
	if cascadePath == "" {
		return nil, &ModelNotFoundError{Path: cascadePath}
	}
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, &ModelNotFoundError{Path: cascadePath}
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("faces: failed to unpack cascade %q: %w", cascadePath, err)
	}
	return &Recognizer{detect: pigoDetector(classifier, source)}, nil
}

// NewRecognizerFromEnv loads the cascade named by OPENCV_HAARCASCADE_PATH.
func NewRecognizerFromEnv(source ImageSource) (*Recognizer, error) {
	return NewRecognizer(os.Getenv(ModelPathEnv), source)
}

// NewRecognizerWithDetector builds a recognizer around a custom detector.
func NewRecognizerWithDetector(detect DetectFunc) *Recognizer {
	return &Recognizer{detect: detect}
}

func pigoDetector(classifier *pigo.Pigo, source ImageSource) DetectFunc {
	return func(ctx context.Context, item *photos.MediaItem) ([]cache.Face, error) {
		img, err := source(ctx, item)
		if err != nil {
			return nil, &DetectionError{MediaItemID: item.ID, Err: err}
		}

		// pigo works on grayscale pixel data, one byte per pixel.
		src := pigo.ImgToNRGBA(img)
		pixels := pigo.RgbToGrayscale(src)
		cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

		params := pigo.CascadeParams{
			MinSize:     20,
			MaxSize:     2000,
			ShiftFactor: 0.1,
			ScaleFactor: 1.1,
			ImageParams: pigo.ImageParams{
				Pixels: pixels,
				Rows:   rows,
				Cols:   cols,
				Dim:    cols,
			},
		}

		dets := classifier.RunCascade(params, 0.0)
		dets = classifier.ClusterDetections(dets, 0.2)

		faces := []cache.Face{}
		for _, det := range dets {
			if det.Q < minFaceQuality {
				continue
			}
			faces = append(faces, cache.Face{
				X: det.Col - det.Scale/2,
				Y: det.Row - det.Scale/2,
				W: det.Scale,
				H: det.Scale,
			})
		}
		return faces, nil
	}
}

// DetectFaces runs detection for the item and returns the face records
// without persisting them.
func (r *Recognizer) DetectFaces(ctx context.Context, item *photos.MediaItem) ([]cache.Face, error) {
	return r.detect(ctx, item)
}

// DetectAndCacheFaces runs detection and stores the result keyed by the
// media item id, replacing any previous result. The detected list is
// returned.
func (r *Recognizer) DetectAndCacheFaces(ctx context.Context, store *cache.Store, item *photos.MediaItem) ([]cache.Face, error) {
	faces, err := r.detect(ctx, item)
	if err != nil {
		return nil, err
	}
	if err := store.InsertFaces(item.ID, faces); err != nil {
		return nil, err
	}
	return faces, nil
}
