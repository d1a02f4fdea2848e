package recognition

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/sqextract/model"
)

func testRegion() RegionImage {
	return RegionImage{Page: 2, BBox: model.NewBBox(0, 0, 10, 10), Image: image.NewGray(image.Rect(0, 0, 4, 4))}
}

func fastConfig() Config {
	c := DefaultConfig()
	c.Timeout = 200 * time.Millisecond
	c.RetryBackoff = time.Millisecond
	return c
}

func TestClient_RecognizeText(t *testing.T) {
	rec := TextRecognizerFunc(func(ctx context.Context, r RegionImage) (string, float64, error) {
		return "25,000.00", 1.4, nil
	})
	c := NewClient(rec, nil, fastConfig())

	text, conf, err := c.RecognizeText(context.Background(), testRegion())
	require.NoError(t, err)
	assert.Equal(t, "25,000.00", text)
	assert.Equal(t, 1.0, conf, "confidence is clamped")
	assert.True(t, c.HasText())
	assert.False(t, c.HasTable())
}

func TestClient_RetriesOnce(t *testing.T) {
	var calls atomic.Int32
	rec := TextRecognizerFunc(func(ctx context.Context, r RegionImage) (string, float64, error) {
		if calls.Add(1) == 1 {
			return "", 0, errors.New("service unavailable")
		}
		return "ok", 0.8, nil
	})
	c := NewClient(rec, nil, fastConfig())

	text, _, err := c.RecognizeText(context.Background(), testRegion())
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_OnRetry(t *testing.T) {
	boom := errors.New("service unavailable")
	var retries []string
	config := fastConfig()
	config.OnRetry = func(ctx context.Context, op string, page int, err error) {
		retries = append(retries, op)
		assert.ErrorIs(t, err, boom)
	}
	rec := TextRecognizerFunc(func(ctx context.Context, r RegionImage) (string, float64, error) {
		return "", 0, boom
	})

	_, _, err := NewClient(rec, nil, config).RecognizeText(context.Background(), testRegion())
	require.Error(t, err)
	assert.Equal(t, []string{"text"}, retries)
}

func TestClient_GivesUp(t *testing.T) {
	boom := errors.New("service unavailable")
	var calls atomic.Int32
	rec := TableRecognizerFunc(func(ctx context.Context, r RegionImage) (Grid, error) {
		calls.Add(1)
		return Grid{}, boom
	})
	c := NewClient(nil, rec, fastConfig())

	_, err := c.RecognizeTable(context.Background(), testRegion())
	require.Error(t, err)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "table", rerr.Op)
	assert.Equal(t, 2, rerr.Page)
	assert.Equal(t, 2, rerr.Attempts)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_Timeout(t *testing.T) {
	rec := TextRecognizerFunc(func(ctx context.Context, r RegionImage) (string, float64, error) {
		<-ctx.Done()
		return "", 0, ctx.Err()
	})
	cfg := fastConfig()
	cfg.Timeout = 20 * time.Millisecond
	c := NewClient(rec, nil, cfg)

	_, _, err := c.RecognizeText(context.Background(), testRegion())
	assert.ErrorIs(t, err, ErrTimeout)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 2, rerr.Attempts)
}

func TestClient_TimeoutIgnoredByProvider(t *testing.T) {
	var calls atomic.Int32
	finished := make(chan struct{})
	rec := TextRecognizerFunc(func(ctx context.Context, r RegionImage) (string, float64, error) {
		if calls.Add(1) == 1 {
			defer close(finished)
			time.Sleep(150 * time.Millisecond)
			return "stale", 0.1, nil
		}
		time.Sleep(20 * time.Millisecond)
		return "fresh", 0.9, nil
	})
	cfg := fastConfig()
	cfg.Timeout = 60 * time.Millisecond
	c := NewClient(rec, nil, cfg)

	text, conf, err := c.RecognizeText(context.Background(), testRegion())
	require.NoError(t, err)
	assert.Equal(t, "fresh", text)
	assert.Equal(t, 0.9, conf)

	<-finished
	assert.Equal(t, "fresh", text, "a late first attempt does not leak into the result")
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_TableTimeoutIgnoredByProvider(t *testing.T) {
	var calls atomic.Int32
	finished := make(chan struct{})
	rec := TableRecognizerFunc(func(ctx context.Context, r RegionImage) (Grid, error) {
		if calls.Add(1) == 1 {
			defer close(finished)
			time.Sleep(150 * time.Millisecond)
			return Grid{Rows: [][]string{{"stale"}}}, nil
		}
		return Grid{Rows: [][]string{{"1", "Wardrobe"}}, Confidence: 0.8}, nil
	})
	cfg := fastConfig()
	cfg.Timeout = 60 * time.Millisecond
	c := NewClient(nil, rec, cfg)

	grid, err := c.RecognizeTable(context.Background(), testRegion())
	require.NoError(t, err)
	<-finished
	assert.Equal(t, [][]string{{"1", "Wardrobe"}}, grid.Rows)
	assert.Equal(t, 0.8, grid.Confidence)
}

func TestClient_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := TextRecognizerFunc(func(ctx context.Context, r RegionImage) (string, float64, error) {
		cancel()
		<-ctx.Done()
		return "", 0, ctx.Err()
	})
	c := NewClient(rec, nil, fastConfig())

	_, _, err := c.RecognizeText(ctx, testRegion())
	assert.ErrorIs(t, err, context.Canceled)

	var rerr *Error
	assert.False(t, errors.As(err, &rerr), "cancellation is not a recognition failure")
}

func TestClient_NoProvider(t *testing.T) {
	c := NewClient(nil, nil, fastConfig())
	_, _, err := c.RecognizeText(context.Background(), testRegion())
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = c.RecognizeTable(context.Background(), testRegion())
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestClient_NoImage(t *testing.T) {
	rec := TextRecognizerFunc(func(ctx context.Context, r RegionImage) (string, float64, error) {
		t.Fatal("recognizer must not be called without an image")
		return "", 0, nil
	})
	c := NewClient(rec, nil, fastConfig())
	_, _, err := c.RecognizeText(context.Background(), RegionImage{Page: 0})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestClient_RateLimit(t *testing.T) {
	rec := TextRecognizerFunc(func(ctx context.Context, r RegionImage) (string, float64, error) {
		return "x", 1, nil
	})
	cfg := fastConfig()
	cfg.RateLimit = 20
	cfg.Burst = 1
	c := NewClient(rec, nil, cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, _, err := c.RecognizeText(context.Background(), testRegion())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func imageDoc() *model.Document {
	img := image.NewGray(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	doc := model.NewDocument("scan")
	page := model.NewPage(0, 595, 842)
	page.AddToken(model.Token{Kind: model.TokenKindImage, BBox: model.NewBBox(100, 100, 200, 100), Image: img})
	page.AddToken(model.Token{Kind: model.TokenKindImage, BBox: model.NewBBox(400, 400, 50, 50)})
	doc.AddPage(page)
	return doc
}

func TestCrop(t *testing.T) {
	doc := imageDoc()

	r, err := Crop(doc, 0, model.NewBBox(250, 150, 100, 20), 2)
	require.NoError(t, err)
	require.NotNil(t, r.Image)
	assert.Equal(t, image.Rect(0, 0, 200, 40), r.Image.Bounds())

	// left half comes from the black image, right half stays white
	dark, _, _, _ := r.Image.At(10, 20).RGBA()
	light, _, _, _ := r.Image.At(190, 20).RGBA()
	assert.Less(t, dark, uint32(0x2000))
	assert.Equal(t, uint32(0xffff), light)
}

func TestCrop_NoImage(t *testing.T) {
	doc := imageDoc()

	_, err := Crop(doc, 0, model.NewBBox(10, 10, 50, 50), 2)
	assert.ErrorIs(t, err, ErrNoImage)

	// an image token without decoded pixels cannot be rendered
	_, err = Crop(doc, 0, model.NewBBox(410, 410, 10, 10), 2)
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = Crop(doc, 3, model.NewBBox(10, 10, 50, 50), 2)
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestHasImage(t *testing.T) {
	doc := imageDoc()
	assert.True(t, HasImage(doc, 0, model.NewBBox(290, 190, 20, 20)))
	assert.True(t, HasImage(doc, 0, model.NewBBox(410, 410, 10, 10)))
	assert.False(t, HasImage(doc, 0, model.NewBBox(10, 10, 50, 50)))
	assert.False(t, HasImage(doc, 1, model.NewBBox(290, 190, 20, 20)))
}

func TestRender(t *testing.T) {
	doc := imageDoc()
	doc.Pages[0].AddToken(model.Token{Kind: model.TokenKindText, Text: "Qty", BBox: model.NewBBox(20, 20, 15, 10)})

	r := Render(doc, 0, model.NewBBox(10, 10, 50, 50), 2)
	assert.Nil(t, r.Image)
	require.Len(t, r.Tokens, 1)
	assert.Equal(t, "Qty", r.Tokens[0].Text)

	r = Render(doc, 0, model.NewBBox(150, 150, 20, 20), 2)
	assert.NotNil(t, r.Image)
	assert.Empty(t, r.Tokens)
}

func TestClient_TokensOnly(t *testing.T) {
	rec := TableRecognizerFunc(func(ctx context.Context, r RegionImage) (Grid, error) {
		return Grid{Rows: [][]string{{r.Tokens[0].Text}}}, nil
	})
	c := NewClient(nil, rec, fastConfig())
	region := RegionImage{Tokens: []model.Token{{Kind: model.TokenKindText, Text: "S.No"}}}

	grid, err := c.RecognizeTable(context.Background(), region)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"S.No"}}, grid.Rows)
}
