package faces

import (
	"context"
	"image"
	"os"
	"path/filepath"

	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
	"github.com/disintegration/imaging"

	// Google Photos serves webp thumbnails; register the decoder.
	_ "golang.org/x/image/webp"
)

// FileImageSource reads images the thumbnail fetcher has placed under root,
// named <media item id> plus the extension for its MIME type.
func FileImageSource(root string) ImageSource {
	return func(ctx context.Context, item *photos.MediaItem) (image.Image, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(root, item.ID+extensionFor(item.MimeType))
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return imaging.Open(path)
	}
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
