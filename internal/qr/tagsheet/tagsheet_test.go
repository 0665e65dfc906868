package tagsheet

import (
	"bytes"
	"fmt"
	"testing"

	"ms-pettag/internal/models"
	"ms-pettag/internal/qr/qr_generator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(t *testing.T, n int) []models.QR {
	t.Helper()
	gen := qr_generator.NewQRGenerator("https://pettag.test", 128)
	out := make([]models.QR, n)
	for i := range out {
		id := fmt.Sprintf("qr-%d", i)
		img, err := gen.Generate(id)
		require.NoError(t, err)
		out[i] = models.QR{ID: id, Image: img}
	}
	return out
}

func TestRender_SinglePage(t *testing.T) {
	out, err := NewRenderer("").Render(Sheet{OrderID: "o-1", Codes: codes(t, 3)})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRender_SpillsOntoSecondPage(t *testing.T) {
	one, err := NewRenderer("").Render(Sheet{OrderID: "o-1", Codes: codes(t, 1)})
	require.NoError(t, err)
	many, err := NewRenderer("").Render(Sheet{OrderID: "o-1", Codes: codes(t, 13)})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(many, []byte("%PDF-")))
	assert.Greater(t, len(many), len(one))
}

func TestRender_Errors(t *testing.T) {
	_, err := NewRenderer("").Render(Sheet{OrderID: "o-1"})
	assert.ErrorIs(t, err, ErrNoCodes)

	_, err = NewRenderer("").Render(Sheet{OrderID: "o-1", Codes: []models.QR{{ID: "bad", Image: []byte("not a png")}}})
	assert.ErrorContains(t, err, "decode qr bad")

	_, err = NewRenderer("/does/not/exist.ttf").Render(Sheet{OrderID: "o-1", Codes: codes(t, 1)})
	assert.ErrorContains(t, err, "failed to load font")
}
