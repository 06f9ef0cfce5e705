package metadata

import (
	"os"

	mp4 "github.com/abema/go-mp4"
	"github.com/dhowden/tag"

	"github.com/smartfolder/smartfolder/internal/classify"
)

// audioExtractor reads embedded tags (ID3, MP4 atoms, Vorbis comments).
type audioExtractor struct{}

func (audioExtractor) Name() string { return "audio" }

func (audioExtractor) Available(cat classify.Category, _ string) bool {
	return cat == classify.Audio
}

func (audioExtractor) Extract(path string, meta *FileMetadata) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return err
	}
	meta.Audio = &AudioMeta{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Genre:  m.Genre(),
		Year:   m.Year(),
		Format: string(m.Format()),
	}
	return nil
}

// mp4Extensions lists the containers go-mp4 can probe.
var mp4Extensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true,
}

// videoExtractor probes MP4-family containers for duration and dimensions.
// Other video containers keep core metadata only.
type videoExtractor struct{}

func (videoExtractor) Name() string { return "video" }

func (videoExtractor) Available(cat classify.Category, ext string) bool {
	return cat == classify.Video && mp4Extensions[ext]
}

func (videoExtractor) Extract(path string, meta *FileMetadata) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := mp4.Probe(f)
	if err != nil {
		return err
	}
	vm := &VideoMeta{}
	if info.Timescale > 0 {
		vm.DurationSeconds = float64(info.Duration) / float64(info.Timescale)
	}
	for _, track := range info.Tracks {
		if track.AVC != nil {
			vm.Width = int(track.AVC.Width)
			vm.Height = int(track.AVC.Height)
			break
		}
	}
	meta.Video = vm
	return nil
}
