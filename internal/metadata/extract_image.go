package metadata

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/smartfolder/smartfolder/internal/classify"
)

// imageExtractor reads pixel dimensions and, for JPEG and TIFF, EXIF data.
type imageExtractor struct{}

func (imageExtractor) Name() string { return "image" }

func (imageExtractor) Available(cat classify.Category, _ string) bool {
	return cat == classify.Image
}

func (imageExtractor) Extract(path string, meta *FileMetadata) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	im := &ImageMeta{}
	if cfg, format, err := image.DecodeConfig(f); err == nil {
		im.Width = cfg.Width
		im.Height = cfg.Height
		im.Format = format
	}

	if _, err := f.Seek(0, 0); err == nil {
		if x, err := exif.Decode(f); err == nil {
			if dt, err := x.DateTime(); err == nil {
				im.TakenAt = dt.UTC()
			}
			if tag, err := x.Get(exif.Make); err == nil {
				if v, err := tag.StringVal(); err == nil {
					im.CameraMake = v
				}
			}
			if tag, err := x.Get(exif.Model); err == nil {
				if v, err := tag.StringVal(); err == nil {
					im.CameraModel = v
				}
			}
			if lat, long, err := x.LatLong(); err == nil {
				im.Latitude = lat
				im.Longitude = long
			}
		}
	}

	meta.Image = im
	return nil
}
