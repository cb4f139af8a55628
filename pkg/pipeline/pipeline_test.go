package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/idphoto/pkg/matting"
	"github.com/menta2k/idphoto/pkg/types"
	"github.com/menta2k/idphoto/pkg/validation"
)

type fakeDetector struct {
	ready bool
	faces []types.FaceBox
	err   error
	calls atomic.Int32
}

func (d *fakeDetector) Ready() bool { return d.ready }

func (d *fakeDetector) Detect(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
	d.calls.Add(1)
	return d.faces, d.err
}

type countingModel struct {
	matting.Model
	ready bool
	err   error
	calls atomic.Int32
}

func (m *countingModel) Ready() bool { return m.ready }

func (m *countingModel) Remove(ctx context.Context, img image.Image) (*matting.Result, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.Model.Remove(ctx, img)
}

type recordingObserver struct {
	mu       sync.Mutex
	stages   []string
	results  []string
	failures []string
}

func (o *recordingObserver) ObserveStage(stage string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) RunFinished(size, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, size+":"+result)
}

func (o *recordingObserver) Failure(kind, code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, kind+":"+code)
}

// portraitPNG draws a dark subject on a light wall and encodes it
func portraitPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{235, 236, 238, 255}
			if x > width/3 && x < 2*width/3 && y > height/4 {
				c = color.NRGBA{60, 40, 30, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func face(x, y, w, h float64) types.FaceBox {
	return types.FaceBox{Rectangle: types.Rectangle{X: x, Y: y, Width: w, Height: h}, Confidence: 0.95}
}

func newFixture(faces ...types.FaceBox) (*fakeDetector, *countingModel) {
	return &fakeDetector{ready: true, faces: faces},
		&countingModel{Model: matting.NewKeyer(), ready: true}
}

func request(t *testing.T, width, height int) Request {
	return Request{
		File:       validation.File{Name: "portrait.png", Data: portraitPNG(t, width, height)},
		Size:       types.Size25x35,
		Background: color.NRGBA{R: 67, G: 142, B: 219, A: 255},
		Paper:      types.Paper4x6,
	}
}

func newPipeline(det *fakeDetector, model *countingModel, opts ...Option) *Pipeline {
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return New(validation.New(), det, model, opts...)
}

func TestRunSuccess(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	p := newPipeline(det, model)

	res, err := p.Run(context.Background(), request(t, 1200, 1600))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Succeeded())
	assert.Equal(t, StageDone, res.Stage)
	assert.Nil(t, res.Err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.FaceCount)
	assert.Equal(t, matting.TierBasic, res.QualityTier)
	assert.True(t, res.Resolution.Sufficient(300))

	fx, fy := res.Face.Center()
	cx, cy := res.Crop.Center()
	assert.InDelta(t, fx, cx, 0.5)
	assert.InDelta(t, fy, cy, 0.5)
	assert.InDelta(t, types.Size25x35.AspectRatio(), res.Crop.AspectRatio(), 1e-3)

	require.NotNil(t, res.Source)
	require.NotNil(t, res.Cropped)
	require.NotNil(t, res.Subject)
	require.NotNil(t, res.Photo)
	require.NotNil(t, res.Preview)
	require.NotNil(t, res.Sheet)
	require.NotNil(t, res.SheetPreview)

	assert.Equal(t, image.Rect(0, 0, 295, 413), res.Photo.Bounds())
	assert.Equal(t, image.Rect(0, 0, 1200, 1800), res.Sheet.Bounds())
	assert.Equal(t, 9, res.Layout.TotalCount)
	for i := 3; i < len(res.Photo.Pix); i += 4 {
		require.Equal(t, uint8(255), res.Photo.Pix[i])
	}
	// wall corner replaced by the requested background
	assert.Equal(t, color.NRGBA{R: 67, G: 142, B: 219, A: 255}, res.Photo.NRGBAAt(1, 1))

	for _, s := range []Stage{StageValidate, StageLocateFace, StageValidateResolution, StageCrop,
		StageRemoveBackground, StageExactCrop, StageApplyColor, StageBuildPreviews} {
		assert.Contains(t, res.Timings, s.String())
	}
	assert.EqualValues(t, 1, model.calls.Load())
}

func TestRunNoFaceNeverInvokesMatting(t *testing.T) {
	det, model := newFixture()
	p := newPipeline(det, model)

	// 400x500 passes validation with a size warning
	res, err := p.Run(context.Background(), request(t, 400, 500))
	require.Error(t, err)

	assert.True(t, IsKind(err, KindFaceDetection))
	assert.True(t, HasCode(err, CodeNoFace))
	assert.Equal(t, StageFailed, res.Stage)
	assert.Equal(t, StageLocateFace, res.Err.Stage)
	assert.Len(t, res.Warnings, 1)
	assert.Zero(t, model.calls.Load())
	assert.Nil(t, res.Photo)
}

func TestRunMultipleFaces(t *testing.T) {
	det, model := newFixture(face(100, 100, 200, 200), face(700, 100, 200, 200))
	p := newPipeline(det, model)

	res, err := p.Run(context.Background(), request(t, 1200, 1600))
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeMultipleFaces))
	assert.Equal(t, 2, res.FaceCount)
	assert.Zero(t, model.calls.Load())
}

func TestRunDetectorNotReady(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	det.ready = false
	p := newPipeline(det, model)

	_, err := p.Run(context.Background(), request(t, 1200, 1600))
	assert.True(t, HasCode(err, CodeDetectorNotReady))
	assert.Zero(t, det.calls.Load())

	_, err = New(nil, nil, model, WithLogger(zerolog.Nop())).Run(context.Background(), request(t, 1200, 1600))
	assert.True(t, HasCode(err, CodeDetectorNotReady))
}

func TestRunDetectorFailure(t *testing.T) {
	boom := errors.New("socket closed")
	det, model := newFixture()
	det.err = boom
	p := newPipeline(det, model)

	_, err := p.Run(context.Background(), request(t, 1200, 1600))
	assert.True(t, HasCode(err, CodeDetectorFailed))
	assert.ErrorIs(t, err, boom)
}

func TestRunLowResolutionCarriesDPI(t *testing.T) {
	// 60x80 face in a 300x420 image gives a 200x280 crop
	det, model := newFixture(face(120, 150, 60, 80))
	p := newPipeline(det, model)

	res, err := p.Run(context.Background(), request(t, 300, 420))
	require.Error(t, err)

	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindResolution, pe.Kind)
	assert.Equal(t, StageValidateResolution, pe.Stage)
	assert.Equal(t, 203, pe.DPI)
	assert.NotEmpty(t, res.Warnings, "validation warnings survive the failure")
	assert.Zero(t, model.calls.Load())
}

func TestRunCustomThreshold(t *testing.T) {
	det, model := newFixture(face(120, 150, 60, 80))
	p := newPipeline(det, model)

	req := request(t, 300, 420)
	req.DPIThreshold = 200
	res, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 203, res.Resolution.Rounded())
}

func TestRunMattingNotReady(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	model.ready = false
	p := newPipeline(det, model)

	res, err := p.Run(context.Background(), request(t, 1200, 1600))
	assert.True(t, IsKind(err, KindMatting))
	assert.True(t, HasCode(err, CodeMattingNotReady))
	assert.Zero(t, model.calls.Load())
	assert.NotNil(t, res.Cropped)
}

func TestRunMattingFailure(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	model.err = errors.New("out of memory")
	p := newPipeline(det, model)

	_, err := p.Run(context.Background(), request(t, 1200, 1600))
	assert.True(t, HasCode(err, CodeMattingFailed))
	assert.EqualValues(t, 1, model.calls.Load())
}

func TestRunValidationFailure(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	p := newPipeline(det, model)

	req := request(t, 1200, 1600)
	req.File.Data = []byte("GIF89a not really")
	res, err := p.Run(context.Background(), req)
	assert.True(t, IsKind(err, KindValidation))
	assert.True(t, HasCode(err, CodeInvalidFile))
	assert.False(t, res.Validation.Valid)
	assert.Zero(t, det.calls.Load())
}

func TestRunInvalidRequest(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	p := newPipeline(det, model)

	req := request(t, 1200, 1600)
	req.Size = types.SizeSpec{}
	_, err := p.Run(context.Background(), req)
	assert.True(t, HasCode(err, CodeInvalidRequest))
}

func TestRunCancelled(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	p := newPipeline(det, model)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Run(ctx, request(t, 1200, 1600))
	assert.True(t, IsKind(err, KindProcessing))
	assert.True(t, HasCode(err, CodeCancelled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StageValidate, res.Err.Stage)
}

func TestRunCopyDoesNotFitWarns(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	p := newPipeline(det, model)

	req := request(t, 1200, 1600)
	req.Margins = types.Margins{Left: 45, Right: 45}
	res, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Layout.Fits)
	assert.Equal(t, 1, res.Layout.Columns)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "does not fit")
}

func TestRunDefaults(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	p := newPipeline(det, model)

	req := request(t, 1200, 1600)
	req.Background = nil
	req.Paper = types.PaperSpec{}
	res, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, res.Photo.NRGBAAt(1, 1))
	assert.Equal(t, types.Paper4x6.WidthPx, res.Layout.SheetWidthPx)
}

func TestRunObserver(t *testing.T) {
	obs := &recordingObserver{}
	det, model := newFixture()
	p := newPipeline(det, model, WithObserver(obs))

	_, _ = p.Run(context.Background(), request(t, 1200, 1600))
	assert.Equal(t, []string{"validate", "locate_face"}, obs.stages)
	assert.Equal(t, []string{"face_detection:no-face"}, obs.failures)
	assert.Equal(t, []string{"25x35:face_detection"}, obs.results)
}

func TestRunConcurrentRunsAreIndependent(t *testing.T) {
	det, model := newFixture(face(450, 400, 300, 400))
	p := newPipeline(det, model)
	data := portraitPNG(t, 1200, 1600)

	sizes := types.SizeSpecs()
	results := make([]*Result, len(sizes))
	var wg sync.WaitGroup
	for i, size := range sizes {
		wg.Add(1)
		go func(i int, size types.SizeSpec) {
			defer wg.Done()
			res, err := p.Run(context.Background(), Request{
				File: validation.File{Name: "p.png", Data: data},
				Size: size,
			})
			if err == nil {
				results[i] = res
			}
		}(i, size)
	}
	wg.Wait()

	ids := map[string]bool{}
	for i, res := range results {
		require.NotNil(t, res, sizes[i].ID)
		w, h := types.MMToPixels(sizes[i].WidthMM, 300), types.MMToPixels(sizes[i].HeightMM, 300)
		assert.Equal(t, image.Rect(0, 0, w, h), res.Photo.Bounds())
		ids[res.RunID] = true
	}
	assert.Len(t, ids, len(sizes))
}

func TestReadiness(t *testing.T) {
	det, model := newFixture()
	model.ready = false
	p := newPipeline(det, model)
	assert.Equal(t, Readiness{Detector: true, Matting: false}, p.Readiness())
}

func TestErrorFormatting(t *testing.T) {
	inner := errors.New("inner")
	e := &Error{Kind: KindResolution, Stage: StageValidateResolution, Code: CodeLowResolution, DPI: 203, Message: "too low", Err: inner}
	assert.Equal(t, "resolution failed at validate_resolution (low-resolution): too low: inner", e.Error())
	assert.ErrorIs(t, e, inner)
	assert.False(t, IsKind(inner, KindResolution))
	assert.Equal(t, "unknown", Stage(42).String())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageCrop.Terminal())
}
