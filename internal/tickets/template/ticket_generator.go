package template

import (
	"bytes"
	"fmt"
	"image/png"
	"os"

	"github.com/signintech/gopdf"

	"ms-payment-verification/internal/models"
)

const fontName = "dejavu"

type TicketPDFGenerator struct {
	font []byte
}

// NewTicketPDFGenerator loads the TTF font once so rendering never touches the filesystem.
func NewTicketPDFGenerator(fontPath string) (*TicketPDFGenerator, error) {
	font, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load font %s: %w", fontPath, err)
	}
	return &TicketPDFGenerator{font: font}, nil
}

func (g *TicketPDFGenerator) Generate(ticket models.Ticket, event *models.Event, qrCode []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4}) // A4 size
	pdf.AddPage()

	if err := pdf.AddTTFFontData(fontName, g.font); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont(fontName, "", 14); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	addHeader(pdf, event)

	pdf.SetY(90)
	addTicketInfo(pdf, ticket, event)

	if len(qrCode) > 0 {
		pdf.SetY(pdf.GetY() + 20)
		if err := addQRCode(pdf, qrCode); err != nil {
			return nil, err
		}
	}

	pdf.SetY(780)
	addFooter(pdf)

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func addHeader(pdf *gopdf.GoPdf, event *models.Event) {
	pdf.SetX(40)
	pdf.SetY(40)
	_ = pdf.SetFontSize(22)
	pdf.Cell(nil, event.Name)
	_ = pdf.SetFontSize(14)
}

func addTicketInfo(pdf *gopdf.GoPdf, ticket models.Ticket, event *models.Event) {
	info := []struct {
		Label string
		Value string
	}{
		{"Ticket", ticket.TicketTypeName},
		{"Ticket ID", ticket.TicketID},
		{"Order", ticket.OrderNumber},
		{"Venue", event.Venue},
		{"Date", event.StartDate.Format("Mon 02 Jan 2006 15:04")},
		{"Price", fmt.Sprintf("LKR %.2f", ticket.PriceAtPurchase)},
		{"Issued", ticket.IssuedAt.Format("2006-01-02 15:04")},
	}

	for _, item := range info {
		if item.Value == "" {
			continue
		}
		pdf.SetX(40)
		pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(22)
	}
}

func addQRCode(pdf *gopdf.GoPdf, qrCode []byte) error {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		return fmt.Errorf("failed to decode QR code: %w", err)
	}

	rect := &gopdf.Rect{W: 180, H: 180}
	if err := pdf.ImageFrom(img, 40, pdf.GetY(), rect); err != nil {
		return fmt.Errorf("failed to draw QR code: %w", err)
	}
	return nil
}

func addFooter(pdf *gopdf.GoPdf) {
	pdf.SetX(40)
	_ = pdf.SetFontSize(10)
	pdf.Cell(nil, "Present this QR code at the entrance. Each ticket admits one person once.")
}
