// Package pipeline owns the photo processing lifecycle. A Pipeline is the
// single mutator of all derived state (source, crop, result, adjustments);
// the presentation layer only ever sees read-only snapshots.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/ymiah/passportpro/internal/adjust"
	"github.com/ymiah/passportpro/internal/compliance"
	"github.com/ymiah/passportpro/internal/crop"
	"github.com/ymiah/passportpro/internal/export"
	"github.com/ymiah/passportpro/internal/intake"
)

var (
	// ErrInvalidTransition reports an event that is not legal in the
	// current stage.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrBusy reports a Submit while another transformation is in flight.
	// There is at most one outstanding backend call per pipeline.
	ErrBusy = errors.New("a transformation is already in progress")

	// ErrNoResult reports an export attempt without a processed result.
	ErrNoResult = errors.New("no processed result to export")
)

// Transformer is the backend boundary. The production implementation is
// *compliance.Client; tests substitute a stub.
type Transformer interface {
	Transform(ctx context.Context, imagePNG []byte, directive string) (*compliance.Result, error)
}

// Pipeline sequences upload, crop, transformation, adjustment, and export
// for one user session. All methods are safe for concurrent use.
type Pipeline struct {
	transformer    Transformer
	maxUploadBytes int64

	mu          sync.Mutex
	stage       Stage
	lastError   string
	source      *intake.SourceImage
	metadata    *intake.Metadata
	cropped     *image.NRGBA
	croppedPNG  []byte
	result      *compliance.Result
	adjustments adjust.State

	// epoch invalidates an in-flight Submit when Reset is issued while the
	// backend call is still running: the late result is discarded instead
	// of resurrecting cleared state.
	epoch int
	busy  bool
}

// New creates an idle pipeline.
func New(t Transformer, maxUploadBytes int64) *Pipeline {
	return &Pipeline{
		transformer:    t,
		maxUploadBytes: maxUploadBytes,
		stage:          StageIdle,
		adjustments:    adjust.Neutral(),
	}
}

// SelectFile accepts an upload and advances Idle -> Cropping. An invalid
// upload (wrong type, oversize, undecodable) is returned as an error with
// no state change.
func (p *Pipeline) SelectFile(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage != StageIdle {
		return fmt.Errorf("%w: select file in stage %s", ErrInvalidTransition, p.stage)
	}

	src, err := intake.Accept(data, p.maxUploadBytes)
	if err != nil {
		return err
	}

	p.source = src
	p.metadata = intake.ExtractMetadata(data)
	p.stage = StageCropping

	log.Info().
		Int("width", src.Width()).
		Int("height", src.Height()).
		Str("mime", src.MIMEType).
		Msg("Source image accepted, entering crop")

	return nil
}

// ConfirmCrop rasterizes the selection into the canonical 35:45 image and
// advances Cropping -> Uploaded. Replacing the crop invalidates any prior
// processed result.
func (p *Pipeline) ConfirmCrop(sel crop.Selection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage != StageCropping {
		return fmt.Errorf("%w: confirm crop in stage %s", ErrInvalidTransition, p.stage)
	}
	return p.confirmCropLocked(sel)
}

func (p *Pipeline) confirmCropLocked(sel crop.Selection) error {
	img, err := crop.Apply(p.source.Image, sel)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode cropped image: %w", err)
	}

	p.cropped = img
	p.croppedPNG = buf.Bytes()
	p.result = nil
	p.stage = StageUploaded
	return nil
}

// ConfirmCropWindow is ConfirmCrop for the interactive pan/zoom control.
func (p *Pipeline) ConfirmCropWindow(win crop.Window) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage != StageCropping {
		return fmt.Errorf("%w: confirm crop in stage %s", ErrInvalidTransition, p.stage)
	}
	return p.confirmCropLocked(win.Selection(p.source.Width(), p.source.Height()))
}

// CancelCrop abandons the crop and returns to Idle, discarding the source.
func (p *Pipeline) CancelCrop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage != StageCropping {
		return fmt.Errorf("%w: cancel crop in stage %s", ErrInvalidTransition, p.stage)
	}

	p.source = nil
	p.metadata = nil
	p.stage = StageIdle
	return nil
}

// Submit issues exactly one backend call and blocks until it returns.
// Valid from Uploaded, Completed, and Failed. Resubmission from Completed
// or Failed chains the most recent processed image back in as the new base
// (iterative refinement), not the original crop.
//
// While a call is in flight the pipeline is in Processing and further
// Submits return ErrBusy. There is no mid-flight cancellation beyond ctx;
// a stuck call is recovered only by Reset.
func (p *Pipeline) Submit(ctx context.Context, directive string) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	switch p.stage {
	case StageUploaded, StageCompleted, StageFailed:
	default:
		p.mu.Unlock()
		return fmt.Errorf("%w: submit in stage %s", ErrInvalidTransition, p.stage)
	}

	base, err := p.basePNGLocked()
	if err != nil {
		p.mu.Unlock()
		return err
	}

	epoch := p.epoch
	p.busy = true
	p.stage = StageProcessing
	p.lastError = ""
	p.mu.Unlock()

	result, err := p.transformer.Transform(ctx, base, directive)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false

	if p.epoch != epoch {
		// Reset happened while the call was in flight; drop the outcome.
		log.Warn().Msg("Discarding transformation result from before reset")
		return nil
	}

	if err != nil {
		p.stage = StageFailed
		p.lastError = compliance.UserMessage(err)
		return err
	}

	p.result = result
	p.stage = StageCompleted
	return nil
}

// basePNGLocked returns the image to send to the backend: the latest
// processed image if one exists, otherwise the canonical crop.
func (p *Pipeline) basePNGLocked() ([]byte, error) {
	if p.result == nil {
		return p.croppedPNG, nil
	}
	if p.result.MIMEType == "image/png" {
		return p.result.Image, nil
	}
	// Backend returned a non-PNG encoding; transcode before chaining.
	img, err := imaging.Decode(bytes.NewReader(p.result.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to decode processed image: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to re-encode processed image: %w", err)
	}
	return buf.Bytes(), nil
}

// SetAdjustments replaces the adjustment state, clamped into domain.
func (p *Pipeline) SetAdjustments(s adjust.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adjustments = s.Clamp()
}

// ApplyPreset atomically overwrites all four adjustment parameters.
func (p *Pipeline) ApplyPreset(name string) error {
	s, ok := adjust.Preset(name)
	if !ok {
		return fmt.Errorf("unknown preset %q", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adjustments = s
	return nil
}

// exportState captures the gated result and adjustments in one critical
// section. The returned result pointer is immutable once set, so it stays
// valid even if a concurrent Reset clears the pipeline afterwards.
func (p *Pipeline) exportState() (*compliance.Result, adjust.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.result == nil {
		return nil, adjust.State{}, ErrNoResult
	}
	if p.result.Score < export.AcceptanceThreshold {
		return nil, adjust.State{}, fmt.Errorf("%w: score %d < %d",
			export.ErrBelowThreshold, p.result.Score, export.AcceptanceThreshold)
	}
	return p.result, p.adjustments, nil
}

// Export encodes the processed result with the current adjustments. The
// score gate is enforced here and again inside the encoder.
func (p *Pipeline) Export(cfg export.Config) (*export.File, error) {
	result, state, err := p.exportState()
	if err != nil {
		return nil, err
	}
	return export.Encode(result, state, cfg)
}

// ExportBundle writes the ZIP bundle (photo, report, metrics) to w. The
// result is captured once up front; encoding and writing never re-read
// pipeline state.
func (p *Pipeline) ExportBundle(w io.Writer, cfg export.Config) error {
	result, state, err := p.exportState()
	if err != nil {
		return err
	}
	file, err := export.Encode(result, state, cfg)
	if err != nil {
		return err
	}
	return export.WriteBundle(w, file, result)
}

// Preview renders the current image with active adjustments at display
// size. In Completed it previews the processed photo; in Uploaded, the
// canonical crop. Preview output never feeds export.
func (p *Pipeline) Preview(maxDimension int) ([]byte, string, error) {
	p.mu.Lock()
	var src image.Image
	switch {
	case p.result != nil:
		img, err := imaging.Decode(bytes.NewReader(p.result.Image))
		if err != nil {
			p.mu.Unlock()
			return nil, "", fmt.Errorf("failed to decode processed image: %w", err)
		}
		src = img
	case p.cropped != nil:
		src = p.cropped
	case p.source != nil:
		src = p.source.Image
	default:
		p.mu.Unlock()
		return nil, "", fmt.Errorf("no image to preview")
	}
	state := p.adjustments
	p.mu.Unlock()

	rendered := adjust.Render(src, state)
	data, err := intake.EncodePreview(rendered, maxDimension)
	if err != nil {
		return nil, "", err
	}
	return data, intake.PreviewMIMEType, nil
}

// Reset returns to Idle from any stage, discarding the source, the crop,
// the processed result, and the adjustments.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.epoch++
	p.source = nil
	p.metadata = nil
	p.cropped = nil
	p.croppedPNG = nil
	p.result = nil
	p.adjustments = adjust.Neutral()
	p.lastError = ""
	p.stage = StageIdle

	log.Info().Msg("Pipeline reset")
}

// Snapshot is a read-only projection of the pipeline for the presentation
// layer.
type Snapshot struct {
	Stage       Stage             `json:"stage"`
	Error       string            `json:"error,omitempty"`
	HasSource   bool              `json:"hasSource"`
	HasResult   bool              `json:"hasResult"`
	Score       int               `json:"score"`
	Metrics     map[string]string `json:"metrics,omitempty"`
	Report      string            `json:"report,omitempty"`
	Adjustments adjust.State      `json:"adjustments"`
	CanExport   bool              `json:"canExport"`
	CameraMake  string            `json:"cameraMake,omitempty"`
	CameraModel string            `json:"cameraModel,omitempty"`
	DateTaken   string            `json:"dateTaken,omitempty"`
}

// Snapshot returns the current projection.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		Stage:       p.stage,
		Error:       p.lastError,
		HasSource:   p.source != nil,
		HasResult:   p.result != nil,
		Adjustments: p.adjustments,
	}
	if p.metadata != nil {
		snap.CameraMake = p.metadata.CameraMake
		snap.CameraModel = p.metadata.CameraModel
		if p.metadata.HasDate {
			snap.DateTaken = p.metadata.DateTaken.Format(time.RFC3339)
		}
	}
	if p.result != nil {
		snap.Score = p.result.Score
		snap.Metrics = p.result.Metrics
		snap.Report = p.result.Report
		snap.CanExport = p.result.Score >= export.AcceptanceThreshold
	}
	return snap
}
