package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymiah/passportpro/internal/adjust"
	"github.com/ymiah/passportpro/internal/compliance"
	"github.com/ymiah/passportpro/internal/crop"
	"github.com/ymiah/passportpro/internal/export"
	"github.com/ymiah/passportpro/internal/intake"
)

const testMaxUpload = 20 << 20

// stubTransformer stands in for the Gemini client. It records every base
// image it receives and can block to simulate a slow backend.
type stubTransformer struct {
	mu     sync.Mutex
	calls  [][]byte
	result *compliance.Result
	err    error
	block  chan struct{}
}

func (s *stubTransformer) Transform(ctx context.Context, imagePNG []byte, directive string) (*compliance.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, imagePNG)
	block := s.block
	result, err := s.result, s.err
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	return result, err
}

func (s *stubTransformer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubTransformer) call(i int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func (s *stubTransformer) setOutcome(result *compliance.Result, err error) {
	s.mu.Lock()
	s.result, s.err = result, err
	s.mu.Unlock()
}

func sourcePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 500))
	for y := 0; y < 500; y++ {
		for x := 0; x < 400; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 99, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func processedResult(t *testing.T, score int) *compliance.Result {
	t.Helper()
	img := imaging.New(35, 45, color.NRGBA{R: 10, G: 200, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return &compliance.Result{
		Image:    buf.Bytes(),
		MIMEType: "image/png",
		Score:    score,
		Metrics:  map[string]string{"Background": "Pass"},
		Report:   "All criteria satisfied.",
	}
}

// uploaded returns a pipeline advanced to the uploaded stage.
func uploaded(t *testing.T, stub *stubTransformer) *Pipeline {
	t.Helper()
	p := New(stub, testMaxUpload)
	require.NoError(t, p.SelectFile(sourcePNG(t)))
	require.NoError(t, p.ConfirmCrop(crop.Selection{X: 0, Y: 0, Width: 350, Height: 450}))
	return p
}

func TestLifecycleHappyPath(t *testing.T) {
	stub := &stubTransformer{result: processedResult(t, 97)}
	p := New(stub, testMaxUpload)

	assert.Equal(t, StageIdle, p.Snapshot().Stage)

	require.NoError(t, p.SelectFile(sourcePNG(t)))
	assert.Equal(t, StageCropping, p.Snapshot().Stage)
	assert.True(t, p.Snapshot().HasSource)

	require.NoError(t, p.ConfirmCrop(crop.Selection{X: 0, Y: 0, Width: 350, Height: 450}))
	assert.Equal(t, StageUploaded, p.Snapshot().Stage)

	require.NoError(t, p.Submit(context.Background(), ""))
	snap := p.Snapshot()
	assert.Equal(t, StageCompleted, snap.Stage)
	assert.True(t, snap.HasResult)
	assert.Equal(t, 97, snap.Score)
	assert.Equal(t, "Pass", snap.Metrics["Background"])
	assert.True(t, snap.CanExport)

	file, err := p.Export(export.Config{Format: export.FormatPNG})
	require.NoError(t, err)
	assert.Equal(t, "passportpro-97.png", file.Name)
}

func TestSelectFileRejectsInvalidUpload(t *testing.T) {
	p := New(&stubTransformer{}, testMaxUpload)

	err := p.SelectFile([]byte("definitely not an image"))
	assert.Error(t, err)
	assert.Equal(t, StageIdle, p.Snapshot().Stage, "a rejected upload must not advance the stage")

	err = p.SelectFile(nil)
	assert.Error(t, err)
	assert.Equal(t, StageIdle, p.Snapshot().Stage)
}

func TestSelectFileOnlyFromIdle(t *testing.T) {
	p := New(&stubTransformer{}, testMaxUpload)
	require.NoError(t, p.SelectFile(sourcePNG(t)))

	err := p.SelectFile(sourcePNG(t))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmCropOnlyFromCropping(t *testing.T) {
	p := New(&stubTransformer{}, testMaxUpload)
	err := p.ConfirmCrop(crop.Selection{X: 0, Y: 0, Width: 35, Height: 45})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmCropRejectsBadSelection(t *testing.T) {
	p := New(&stubTransformer{}, testMaxUpload)
	require.NoError(t, p.SelectFile(sourcePNG(t)))

	err := p.ConfirmCrop(crop.Selection{X: 0, Y: 0, Width: 500, Height: 500})
	assert.Error(t, err)
	assert.Equal(t, StageCropping, p.Snapshot().Stage, "a failed crop stays in cropping")
}

func TestConfirmCropWindow(t *testing.T) {
	p := New(&stubTransformer{}, testMaxUpload)
	require.NoError(t, p.SelectFile(sourcePNG(t)))

	require.NoError(t, p.ConfirmCropWindow(crop.Window{CenterX: 0.5, CenterY: 0.4, Zoom: 1.5}))
	assert.Equal(t, StageUploaded, p.Snapshot().Stage)
}

func TestCancelCropReturnsToIdle(t *testing.T) {
	p := New(&stubTransformer{}, testMaxUpload)
	require.NoError(t, p.SelectFile(sourcePNG(t)))
	require.NoError(t, p.CancelCrop())

	snap := p.Snapshot()
	assert.Equal(t, StageIdle, snap.Stage)
	assert.False(t, snap.HasSource)

	// The pipeline accepts a fresh upload after cancelling.
	require.NoError(t, p.SelectFile(sourcePNG(t)))
}

func TestSubmitOnlyFromValidStages(t *testing.T) {
	p := New(&stubTransformer{}, testMaxUpload)
	assert.ErrorIs(t, p.Submit(context.Background(), ""), ErrInvalidTransition)

	require.NoError(t, p.SelectFile(sourcePNG(t)))
	assert.ErrorIs(t, p.Submit(context.Background(), ""), ErrInvalidTransition)
}

func TestSubmitFailureSetsFailedWithUserMessage(t *testing.T) {
	refusal := &compliance.RefusalError{Message: "The photo contains multiple people."}
	stub := &stubTransformer{err: refusal}
	p := uploaded(t, stub)

	err := p.Submit(context.Background(), "")
	assert.Error(t, err)

	snap := p.Snapshot()
	assert.Equal(t, StageFailed, snap.Stage)
	assert.Equal(t, refusal.Message, snap.Error, "refusal text is surfaced verbatim")
	assert.False(t, snap.HasResult)

	// Failed permits a retry without re-uploading.
	stub.setOutcome(processedResult(t, 95), nil)
	require.NoError(t, p.Submit(context.Background(), ""))
	assert.Equal(t, StageCompleted, p.Snapshot().Stage)
}

func TestResubmitChainsProcessedImage(t *testing.T) {
	result := processedResult(t, 85)
	stub := &stubTransformer{result: result}
	p := uploaded(t, stub)

	require.NoError(t, p.Submit(context.Background(), ""))
	require.NoError(t, p.Submit(context.Background(), "Remove the shadow behind the left ear"))

	require.Equal(t, 2, stub.callCount())
	assert.NotEqual(t, stub.call(0), stub.call(1))
	assert.Equal(t, result.Image, stub.call(1), "refinement starts from the processed image, not the crop")
}

func TestSubmitBusy(t *testing.T) {
	stub := &stubTransformer{result: processedResult(t, 95), block: make(chan struct{})}
	p := uploaded(t, stub)

	done := make(chan error, 1)
	go func() { done <- p.Submit(context.Background(), "") }()

	require.Eventually(t, func() bool {
		return p.Snapshot().Stage == StageProcessing
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, p.Submit(context.Background(), ""), ErrBusy)

	close(stub.block)
	require.NoError(t, <-done)
	assert.Equal(t, StageCompleted, p.Snapshot().Stage)
}

func TestResetDuringFlightDiscardsResult(t *testing.T) {
	stub := &stubTransformer{result: processedResult(t, 95), block: make(chan struct{})}
	p := uploaded(t, stub)

	done := make(chan error, 1)
	go func() { done <- p.Submit(context.Background(), "") }()

	require.Eventually(t, func() bool {
		return p.Snapshot().Stage == StageProcessing
	}, 2*time.Second, 5*time.Millisecond)

	p.Reset()
	close(stub.block)
	require.NoError(t, <-done)

	snap := p.Snapshot()
	assert.Equal(t, StageIdle, snap.Stage)
	assert.False(t, snap.HasResult, "a result from before the reset must not resurrect state")
	assert.False(t, snap.HasSource)
}

func TestExportGating(t *testing.T) {
	stub := &stubTransformer{result: processedResult(t, export.AcceptanceThreshold-1)}
	p := uploaded(t, stub)

	_, err := p.Export(export.Config{Format: export.FormatPNG})
	assert.ErrorIs(t, err, ErrNoResult)

	require.NoError(t, p.Submit(context.Background(), ""))

	_, err = p.Export(export.Config{Format: export.FormatPNG})
	assert.ErrorIs(t, err, export.ErrBelowThreshold)
	assert.False(t, p.Snapshot().CanExport)
}

func TestExportBundle(t *testing.T) {
	stub := &stubTransformer{result: processedResult(t, 95)}
	p := uploaded(t, stub)
	require.NoError(t, p.Submit(context.Background(), ""))

	var buf bytes.Buffer
	require.NoError(t, p.ExportBundle(&buf, export.Config{Format: export.FormatPNG}))
	assert.Equal(t, "PK", string(buf.Bytes()[:2]), "bundle is a ZIP archive")
}

// resetDuringWrite resets the pipeline as soon as bundle bytes start
// flowing, emulating a concurrent reset racing a bundle download.
type resetDuringWrite struct {
	pipe *Pipeline
	buf  bytes.Buffer
	once sync.Once
}

func (w *resetDuringWrite) Write(b []byte) (int, error) {
	w.once.Do(w.pipe.Reset)
	return w.buf.Write(b)
}

func TestExportBundleSurvivesConcurrentReset(t *testing.T) {
	stub := &stubTransformer{result: processedResult(t, 95)}
	p := uploaded(t, stub)
	require.NoError(t, p.Submit(context.Background(), ""))

	w := &resetDuringWrite{pipe: p}
	require.NoError(t, p.ExportBundle(w, export.Config{Format: export.FormatPNG}))

	zr, err := zip.NewReader(bytes.NewReader(w.buf.Bytes()), int64(w.buf.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 3, "the bundle is built from the result captured before the reset")
	assert.Equal(t, StageIdle, p.Snapshot().Stage)
}

func TestAdjustments(t *testing.T) {
	p := New(&stubTransformer{}, testMaxUpload)

	assert.Equal(t, adjust.Neutral(), p.Snapshot().Adjustments)

	p.SetAdjustments(adjust.State{Brightness: 400, Contrast: 120, Exposure: 100, Saturation: 10})
	got := p.Snapshot().Adjustments
	assert.Equal(t, adjust.Max, got.Brightness, "out-of-domain values are clamped")
	assert.Equal(t, adjust.Min, got.Saturation)
	assert.Equal(t, 120, got.Contrast)

	require.NoError(t, p.ApplyPreset("studio"))
	studio, _ := adjust.Preset("studio")
	assert.Equal(t, studio, p.Snapshot().Adjustments, "a preset overwrites all four parameters")

	assert.Error(t, p.ApplyPreset("sepia"))
	assert.Equal(t, studio, p.Snapshot().Adjustments, "an unknown preset changes nothing")
}

func TestResetClearsEverything(t *testing.T) {
	stub := &stubTransformer{result: processedResult(t, 95)}
	p := uploaded(t, stub)
	require.NoError(t, p.Submit(context.Background(), ""))
	p.SetAdjustments(adjust.State{Brightness: 120, Contrast: 110, Exposure: 105, Saturation: 90})

	p.Reset()

	snap := p.Snapshot()
	assert.Equal(t, StageIdle, snap.Stage)
	assert.False(t, snap.HasSource)
	assert.False(t, snap.HasResult)
	assert.Equal(t, 0, snap.Score)
	assert.Equal(t, adjust.Neutral(), snap.Adjustments)
	assert.Empty(t, snap.Error)
}

func TestPreview(t *testing.T) {
	stub := &stubTransformer{result: processedResult(t, 95)}
	p := New(stub, testMaxUpload)

	_, _, err := p.Preview(512)
	assert.Error(t, err, "nothing to preview while idle")

	require.NoError(t, p.SelectFile(sourcePNG(t)))
	data, mime, err := p.Preview(512)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", mime)
	assert.NotEmpty(t, data)

	require.NoError(t, p.ConfirmCrop(crop.Selection{X: 0, Y: 0, Width: 350, Height: 450}))
	require.NoError(t, p.Submit(context.Background(), ""))

	data, _, err = p.Preview(512)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "completed previews show the processed photo")
}

func TestReplacingCropInvalidatesResult(t *testing.T) {
	stub := &stubTransformer{result: processedResult(t, 95)}
	p := uploaded(t, stub)
	require.NoError(t, p.Submit(context.Background(), ""))
	require.True(t, p.Snapshot().HasResult)

	p.Reset()
	require.NoError(t, p.SelectFile(sourcePNG(t)))
	require.NoError(t, p.ConfirmCrop(crop.Selection{X: 10, Y: 10, Width: 350, Height: 450}))

	snap := p.Snapshot()
	assert.Equal(t, StageUploaded, snap.Stage)
	assert.False(t, snap.HasResult, "a fresh crop never carries an old result")
}

func TestSnapshotSurfacesCaptureMetadata(t *testing.T) {
	p := New(&stubTransformer{}, testMaxUpload)
	p.metadata = &intake.Metadata{
		CameraMake:  "Canon",
		CameraModel: "EOS R6",
		DateTaken:   time.Date(2024, 5, 14, 10, 30, 0, 0, time.UTC),
		HasDate:     true,
	}

	snap := p.Snapshot()
	assert.Equal(t, "Canon", snap.CameraMake)
	assert.Equal(t, "EOS R6", snap.CameraModel)
	assert.Equal(t, "2024-05-14T10:30:00Z", snap.DateTaken)

	p.metadata = &intake.Metadata{CameraMake: "Canon"}
	assert.Empty(t, p.Snapshot().DateTaken, "no date field without an EXIF date")
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, "idle", StageIdle.String())
	assert.Equal(t, "processing", StageProcessing.String())
	assert.Equal(t, "unknown", Stage(99).String())

	b, err := StageCompleted.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "completed", string(b))
}
