package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestNormalize_Scales(t *testing.T) {
	out, err := normalize(testPNG(t, 1280, 720), Size{Width: 640, Height: 480})
	require.NoError(t, err)
	w, h := decodedSize(t, out)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestNormalize_RejectsGarbage(t *testing.T) {
	_, err := normalize([]byte("not an image"), Size{Width: 640, Height: 480})
	assert.Error(t, err)
}

func TestSizeDefault(t *testing.T) {
	assert.Equal(t, Size{Width: 640, Height: 480}, Size{}.orDefault())
	assert.Equal(t, Size{Width: 320, Height: 240}, Size{Width: 320, Height: 240}.orDefault())
}

func TestHTTPSnapshot_Frame(t *testing.T) {
	img := testPNG(t, 320, 240)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	src := NewHTTPSnapshot(srv.URL, Size{}, time.Second, clk)

	f1, err := src.Frame(context.Background())
	require.NoError(t, err)
	f2, err := src.Frame(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 640, f1.Width)
	assert.Equal(t, clk.Now(), f1.Timestamp)
	assert.Equal(t, uint64(1), f1.Seq)
	assert.Equal(t, uint64(2), f2.Seq)
	w, h := decodedSize(t, f1.Data)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	require.NoError(t, src.Close())
	_, err = src.Frame(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHTTPSnapshot_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSnapshot(srv.URL, Size{}, time.Second, nil).Frame(context.Background())
	assert.Error(t, err)
}

func TestHTTPSnapshot_FailsImmediatelyBeforeFirstFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSnapshot(srv.URL, Size{}, time.Second, nil).WithMaxFailures(5).Frame(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFrameSkipped)
}

func TestHTTPSnapshot_TransientFailuresAreSkipped(t *testing.T) {
	img := testPNG(t, 640, 480)
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	src := NewHTTPSnapshot(srv.URL, Size{}, time.Second, clock.NewMock()).WithMaxFailures(3)
	ctx := context.Background()

	_, err := src.Frame(ctx)
	require.NoError(t, err)

	failing.Store(true)
	for i := 0; i < 2; i++ {
		_, err = src.Frame(ctx)
		assert.ErrorIs(t, err, ErrFrameSkipped, "failure %d", i+1)
	}

	// A good frame resets the run.
	failing.Store(false)
	f, err := src.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)

	failing.Store(true)
	for i := 0; i < 2; i++ {
		_, err = src.Frame(ctx)
		assert.ErrorIs(t, err, ErrFrameSkipped)
	}
	_, err = src.Frame(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFrameSkipped)
	assert.Contains(t, err.Error(), "3 snapshots failed in a row")
}

func TestDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), testPNG(t, 64, 48), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), testPNG(t, 64, 48), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	src, err := NewDirectory(dir, Size{Width: 64, Height: 48}, false, clock.NewMock())
	require.NoError(t, err)

	ctx := context.Background()
	f, err := src.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
	_, err = src.Frame(ctx)
	require.NoError(t, err)

	_, err = src.Frame(ctx)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestDirectory_Loop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "only.png"), testPNG(t, 64, 48), 0o644))

	src, err := NewDirectory(dir, Size{Width: 64, Height: 48}, true, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := src.Frame(context.Background())
		require.NoError(t, err)
	}
}

func TestNewDirectory_Empty(t *testing.T) {
	_, err := NewDirectory(t.TempDir(), Size{}, false, nil)
	assert.Error(t, err)
}
