package intake

import (
	"bytes"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Metadata holds the EXIF fields surfaced to the user alongside an accepted
// upload. Extraction is best-effort: many uploads (screenshots, exports from
// messaging apps) carry no EXIF at all.
type Metadata struct {
	CameraMake  string
	CameraModel string
	DateTaken   time.Time
	HasDate     bool
}

// ExtractMetadata reads EXIF metadata from the encoded upload bytes.
// A missing or unreadable EXIF block returns an empty Metadata, not an error.
func ExtractMetadata(data []byte) *Metadata {
	meta := &Metadata{}

	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("No EXIF metadata in upload")
		return meta
	}

	meta.CameraMake = strings.TrimSpace(exifData.Make)
	meta.CameraModel = strings.TrimSpace(exifData.Model)

	// Priority: DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		meta.DateTaken = exifData.DateTimeOriginal()
		meta.HasDate = true
	case !exifData.CreateDate().IsZero():
		meta.DateTaken = exifData.CreateDate()
		meta.HasDate = true
	case !exifData.ModifyDate().IsZero():
		meta.DateTaken = exifData.ModifyDate()
		meta.HasDate = true
	}

	log.Debug().
		Str("camera_make", meta.CameraMake).
		Str("camera_model", meta.CameraModel).
		Bool("has_date", meta.HasDate).
		Msg("EXIF metadata extracted")

	return meta
}
