package template

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payment-verification/internal/models"
	qr "ms-payment-verification/internal/tickets/qr_genrator"
)

// fontForTest finds a DejaVu font on the machine or skips
func fontForTest(t *testing.T) string {
	candidates := []string{
		os.Getenv("TICKET_FONT_PATH"),
		"../../../fonts/DejaVuSans.ttf",
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/TTF/DejaVuSans.ttf",
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	t.Skip("DejaVuSans.ttf not available")
	return ""
}

func TestNewTicketPDFGenerator_MissingFont(t *testing.T) {
	_, err := NewTicketPDFGenerator("/does/not/exist.ttf")
	assert.Error(t, err)
}

func TestGenerate_ProducesPDF(t *testing.T) {
	g, err := NewTicketPDFGenerator(fontForTest(t))
	require.NoError(t, err)

	ticket := models.Ticket{
		TicketID:        "5f0c3c52-5b43-4a5e-9d38-3b4a2a0c1e11",
		OrderNumber:     "ORD-1",
		EventID:         "evt-1",
		TicketTypeID:    "tt-vip",
		TicketTypeName:  "VIP",
		PriceAtPurchase: 75,
		IssuedAt:        time.Now(),
	}
	event := &models.Event{ID: "evt-1", Name: "Jazz Night", Venue: "Nelum Pokuna", StartDate: time.Now().Add(72 * time.Hour)}

	png, _, err := qr.NewQRGenerator("secret").GenerateEncryptedQR(models.QRPayload{TicketID: ticket.TicketID})
	require.NoError(t, err)

	pdf, err := g.Generate(ticket, event, png)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, err = g.Generate(ticket, event, []byte("not a png"))
	assert.Error(t, err)
}
