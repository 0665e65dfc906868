package qr_generator

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

const scanPath = "/qr/scan/"

// QRGenerator renders scan URLs into PNG tags. Highest recovery keeps worn
// or dirty tags readable.
type QRGenerator struct {
	baseURL string
	size    int
}

func NewQRGenerator(baseURL string, size int) *QRGenerator {
	if size <= 0 {
		size = 300
	}
	return &QRGenerator{baseURL: strings.TrimRight(baseURL, "/"), size: size}
}

// ScanURL is the content encoded into the tag for qrID.
func (g *QRGenerator) ScanURL(qrID string) string {
	return g.baseURL + scanPath + qrID
}

func (g *QRGenerator) Render(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Highest, g.size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// Generate renders the tag image for qrID.
func (g *QRGenerator) Generate(qrID string) ([]byte, error) {
	return g.Render(g.ScanURL(qrID))
}
