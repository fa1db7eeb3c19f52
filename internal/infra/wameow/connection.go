package wameow

import (
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"

	"zapdesk/platform/logger"
)

// QRCodeGenerator renders pairing QR codes as base64 PNGs for the API and
// as half-block art for the terminal.
type QRCodeGenerator struct {
	logger     *logger.Logger
	mu         sync.Mutex
	lastQRCode string
}

func NewQRCodeGenerator(logger *logger.Logger) *QRCodeGenerator {
	return &QRCodeGenerator{
		logger: logger,
	}
}

func (q *QRCodeGenerator) GenerateQRCodeImage(qrText string) string {
	if qrText == "" {
		q.logger.Warn("Empty QR text provided")
		return ""
	}

	png, err := qrcode.Encode(qrText, qrcode.Medium, 256)
	if err != nil {
		q.logger.ErrorWithFields("Failed to generate QR code", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func (q *QRCodeGenerator) DisplayQRCodeInTerminal(qrCode, instance string) {
	if qrCode == "" {
		q.logger.WarnWithFields("Empty QR code", map[string]interface{}{
			"instance": instance,
		})
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lastQRCode == qrCode {
		q.logger.DebugWithFields("Skipping duplicate QR code display", map[string]interface{}{
			"instance": instance,
		})
		return
	}
	q.lastQRCode = qrCode

	fmt.Printf("\nScan the QR code below to connect instance %q:\n\n", instance)
	qrterminal.GenerateHalfBlock(qrCode, qrterminal.L, os.Stdout)
	fmt.Println()
}

func (q *QRCodeGenerator) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastQRCode = ""
}
