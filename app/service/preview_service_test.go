package service

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"labeloo/app/apperr"
	"labeloo/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbnail(t *testing.T) {
	env := newTestEnv(t)
	src := filepath.Join(t.TempDir(), "big.png")
	require.NoError(t, os.WriteFile(src, pngBytes(t, 400, 200), 0644))

	svc := NewPreviewService(env.log)
	data, err := svc.Thumbnail(src, 100)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	_, err = svc.Thumbnail(filepath.Join(t.TempDir(), "missing.png"), 100)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAnnotatedPreviewDrawsBoxes(t *testing.T) {
	env := newTestEnv(t)
	src := filepath.Join(t.TempDir(), "canvas.png")
	require.NoError(t, os.WriteFile(src, pngBytes(t, 64, 64), 0644))

	svc := NewPreviewService(env.log)
	data, err := svc.Annotated(src, []model.Shape{
		model.Rectangle{Origin: model.Point{X: 8, Y: 8}, Width: 32, Height: 32},
		model.UnknownShape{Type: "ellipse"},
	})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	_, _, _, a := img.At(8, 20).RGBA()
	assert.NotZero(t, a, "矩形边框应被绘制")
	_, _, _, a = img.At(24, 24).RGBA()
	assert.Zero(t, a, "矩形内部保持透明")
}
