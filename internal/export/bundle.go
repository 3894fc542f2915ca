package export

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/ymiah/passportpro/internal/compliance"
)

// WriteBundle writes a ZIP archive containing the exported photo, the
// narrative report, and the per-criterion metrics. The same score gate
// applies as for a plain export because the file must already have been
// produced by Encode.
func WriteBundle(w io.Writer, file *File, result *compliance.Result) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	photo, err := zw.Create(file.Name)
	if err != nil {
		return fmt.Errorf("failed to create photo entry: %w", err)
	}
	if _, err := photo.Write(file.Data); err != nil {
		return fmt.Errorf("failed to write photo: %w", err)
	}

	report, err := zw.Create("report.txt")
	if err != nil {
		return fmt.Errorf("failed to create report entry: %w", err)
	}
	if _, err := io.WriteString(report, result.Report+"\n"); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	metrics, err := zw.Create("metrics.json")
	if err != nil {
		return fmt.Errorf("failed to create metrics entry: %w", err)
	}
	enc := json.NewEncoder(metrics)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"score":   result.Score,
		"metrics": result.Metrics,
	}); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}

	return zw.Close()
}
