// Package tagsheet lays out an order's QR codes on printable A4 pages.
package tagsheet

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"ms-pettag/internal/models"

	"github.com/signintech/gopdf"
)

const (
	columns  = 3
	rows     = 4
	tagSize  = 150.0
	marginX  = 40.0
	marginY  = 60.0
	gapX     = 32.0
	gapY     = 24.0
	labelGap = 14.0
	fontName = "label"
)

var ErrNoCodes = errors.New("tagsheet: no qr codes to print")

type Sheet struct {
	OrderID string
	Codes   []models.QR
}

// Renderer draws tag sheets. Labels are printed only when FontPath points at
// a TTF file, gopdf cannot write text without one.
type Renderer struct {
	FontPath string
}

func NewRenderer(fontPath string) *Renderer {
	return &Renderer{FontPath: fontPath}
}

func (r *Renderer) Render(sheet Sheet) ([]byte, error) {
	if len(sheet.Codes) == 0 {
		return nil, ErrNoCodes
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})

	labels := false
	if r.FontPath != "" {
		if err := pdf.AddTTFFont(fontName, r.FontPath); err != nil {
			return nil, fmt.Errorf("failed to load font: %w", err)
		}
		if err := pdf.SetFont(fontName, "", 9); err != nil {
			return nil, fmt.Errorf("failed to set font: %w", err)
		}
		labels = true
	}

	perPage := columns * rows
	for i, code := range sheet.Codes {
		slot := i % perPage
		if slot == 0 {
			pdf.AddPage()
			if labels {
				pdf.SetXY(marginX, marginY/2)
				if err := pdf.Cell(nil, "Order "+sheet.OrderID); err != nil {
					return nil, err
				}
			}
		}

		img, err := png.Decode(bytes.NewReader(code.Image))
		if err != nil {
			return nil, fmt.Errorf("decode qr %s: %w", code.ID, err)
		}
		x := marginX + float64(slot%columns)*(tagSize+gapX)
		y := marginY + float64(slot/columns)*(tagSize+labelGap+gapY)
		if err := pdf.ImageFrom(img, x, y, &gopdf.Rect{W: tagSize, H: tagSize}); err != nil {
			return nil, fmt.Errorf("draw qr %s: %w", code.ID, err)
		}

		if labels {
			pdf.SetXY(x, y+tagSize+2)
			if err := pdf.Cell(nil, code.ID); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
