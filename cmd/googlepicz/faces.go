package main

import (
	"context"
	"path/filepath"

	"github.com/Christopher-Schulze/googlepicz/config"
	"github.com/Christopher-Schulze/googlepicz/pkg/cache"
	"github.com/Christopher-Schulze/googlepicz/pkg/faces"
	"github.com/Christopher-Schulze/googlepicz/util/log"
)

// detectFacesSweep runs detection over cached items that have no stored face
// record yet. Detection is opt-in via the detect_faces config flag and reads
// the thumbnails the image loader has already fetched.
func detectFacesSweep(ctx context.Context, cfg *config.Config, store *cache.Store) {
	source := faces.FileImageSource(filepath.Join(cfg.CachePath, "thumbnails"))
	recognizer, err := faces.NewRecognizerFromEnv(source)
	if err != nil {
		log.Printf("Face detection disabled: %v", err)
		return
	}

	items, err := store.GetAllMediaItems()
	if err != nil {
		log.Printf("Face detection sweep failed to list items: %v", err)
		return
	}

	detected := 0
	for i := range items {
		if ctx.Err() != nil {
			return
		}
		if _, ok, err := store.GetFaces(items[i].ID); err != nil || ok {
			continue
		}
		result, err := recognizer.DetectAndCacheFaces(ctx, store, &items[i])
		if err != nil {
			log.Debugf("Face detection failed for %s: %v", items[i].ID, err)
			continue
		}
		detected += len(result)
	}
	log.Printf("Face detection sweep complete: %d faces across %d items", detected, len(items))
}
