package tickets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-payment-verification/internal/email"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/metrics"
	"ms-payment-verification/internal/models"
	"ms-payment-verification/internal/utils"
)

type Stage string

const (
	StageGeneration Stage = "generation"
	StageDelivery   Stage = "delivery"
)

// FulfillmentError reports which stage of ticket fulfillment failed.
type FulfillmentError struct {
	Stage       Stage
	OrderNumber string
	Err         error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("fulfillment of %s failed at %s: %v", e.OrderNumber, e.Stage, e.Err)
}

func (e *FulfillmentError) Unwrap() error {
	return e.Err
}

type QREncoder interface {
	GenerateEncryptedQR(payload models.QRPayload) ([]byte, string, error)
}

type Renderer interface {
	Generate(ticket models.Ticket, event *models.Event, qrCode []byte) ([]byte, error)
}

type Store interface {
	SaveTickets(ctx context.Context, tickets []models.Ticket) error
}

type WhatsAppNotifier interface {
	NotifyWhatsApp(ctx context.Context, n models.WhatsAppNotification) error
}

type Fulfiller struct {
	qr       QREncoder
	renderer Renderer
	store    Store
	mailer   email.Mailer
	whatsapp WhatsAppNotifier
	logger   *logger.Logger
	now      func() time.Time
}

// NewFulfiller wires the generation and delivery stages. whatsapp may be nil.
func NewFulfiller(qr QREncoder, renderer Renderer, store Store, mailer email.Mailer, whatsapp WhatsAppNotifier, log *logger.Logger) *Fulfiller {
	return &Fulfiller{
		qr:       qr,
		renderer: renderer,
		store:    store,
		mailer:   mailer,
		whatsapp: whatsapp,
		logger:   log,
		now:      time.Now,
	}
}

// Fulfill issues one ticket per purchased unit, e-mails them and sends a best-effort
// WhatsApp confirmation. Each call issues a fresh set of tickets.
func (f *Fulfiller) Fulfill(ctx context.Context, order *models.Order, event *models.Event) ([]models.TicketArtifact, error) {
	artifacts, err := f.generate(ctx, order, event)
	if err != nil {
		return nil, f.fail(StageGeneration, order.OrderNumber, err)
	}

	if err := f.deliver(ctx, order, event, artifacts); err != nil {
		return artifacts, f.fail(StageDelivery, order.OrderNumber, err)
	}

	f.logger.Info("FULFILL", fmt.Sprintf("Issued and delivered %d ticket(s) for %s", len(artifacts), order.OrderNumber))
	f.confirmOnWhatsApp(ctx, order, artifacts)
	return artifacts, nil
}

func (f *Fulfiller) generate(ctx context.Context, order *models.Order, event *models.Event) ([]models.TicketArtifact, error) {
	artifacts := make([]models.TicketArtifact, 0, order.TicketCount())
	for _, line := range order.Tickets {
		for i := 0; i < line.Quantity; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			artifact, err := f.issue(order, event, line)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, artifact)
		}
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("order %s has no tickets to issue", order.OrderNumber)
	}

	issued := make([]models.Ticket, len(artifacts))
	for i, a := range artifacts {
		issued[i] = a.Ticket
	}
	if err := f.store.SaveTickets(ctx, issued); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func (f *Fulfiller) issue(order *models.Order, event *models.Event, line models.OrderLine) (models.TicketArtifact, error) {
	issuedAt := f.now().UTC()
	ticket := models.Ticket{
		TicketID:        utils.GenerateTicketID(),
		OrderNumber:     order.OrderNumber,
		EventID:         order.EventID,
		TicketTypeID:    line.TicketTypeID,
		TicketTypeName:  line.Name,
		PriceAtPurchase: line.Price,
		IssuedAt:        issuedAt,
	}
	ticket.FileName = fmt.Sprintf("ticket-%s-%s-%d.pdf", order.OrderNumber, ticket.TicketID, issuedAt.UnixNano())

	png, _, err := f.qr.GenerateEncryptedQR(models.QRPayload{
		TicketID:     ticket.TicketID,
		OrderNumber:  ticket.OrderNumber,
		EventID:      ticket.EventID,
		TicketTypeID: ticket.TicketTypeID,
		IssuedAt:     issuedAt,
	})
	if err != nil {
		return models.TicketArtifact{}, fmt.Errorf("generate QR for ticket %s: %w", ticket.TicketID, err)
	}
	ticket.QRCode = png

	pdf, err := f.renderer.Generate(ticket, event, png)
	if err != nil {
		return models.TicketArtifact{}, fmt.Errorf("render ticket %s: %w", ticket.TicketID, err)
	}
	return models.TicketArtifact{Ticket: ticket, PDF: pdf}, nil
}

func (f *Fulfiller) deliver(ctx context.Context, order *models.Order, event *models.Event, artifacts []models.TicketArtifact) error {
	lines := make([]email.TicketLine, 0, len(order.Tickets))
	for _, l := range order.Tickets {
		lines = append(lines, email.TicketLine{Name: l.Name, Quantity: l.Quantity})
	}
	body, err := email.RenderTicketEmail(email.TicketEmailData{
		OrderNumber: order.OrderNumber,
		EventName:   event.Name,
		Venue:       event.Venue,
		StartDate:   event.StartDate,
		Lines:       lines,
		TicketCount: len(artifacts),
	})
	if err != nil {
		return err
	}

	attachments := make([]email.Attachment, len(artifacts))
	for i, a := range artifacts {
		attachments[i] = email.Attachment{FileName: a.Ticket.FileName, ContentType: "application/pdf", Data: a.PDF}
	}

	return f.mailer.Send(ctx, email.Delivery{
		To:          order.CustomerEmail,
		Subject:     fmt.Sprintf("Your tickets for %s (%s)", event.Name, order.OrderNumber),
		Body:        body,
		Attachments: attachments,
	})
}

func (f *Fulfiller) confirmOnWhatsApp(ctx context.Context, order *models.Order, artifacts []models.TicketArtifact) {
	if f.whatsapp == nil || strings.TrimSpace(order.CustomerPhone) == "" {
		return
	}
	ids := make([]string, len(artifacts))
	for i, a := range artifacts {
		ids[i] = a.Ticket.TicketID
	}
	n := models.WhatsAppNotification{
		OrderNumber: order.OrderNumber,
		Phone:       order.CustomerPhone,
		Message:     fmt.Sprintf("Payment confirmed for order %s. %d ticket(s) were sent to %s.", order.OrderNumber, len(artifacts), order.CustomerEmail),
		TicketIDs:   ids,
		Timestamp:   f.now().UTC(),
	}
	if err := f.whatsapp.NotifyWhatsApp(ctx, n); err != nil {
		f.logger.Warn("FULFILL", fmt.Sprintf("WhatsApp confirmation for %s not sent: %v", order.OrderNumber, err))
	}
}

func (f *Fulfiller) fail(stage Stage, orderNumber string, err error) error {
	metrics.FulfillmentFailuresTotal.WithLabelValues(string(stage)).Inc()
	f.logger.Error("FULFILL", fmt.Sprintf("%s failed at %s: %v", orderNumber, stage, err))
	return &FulfillmentError{Stage: stage, OrderNumber: orderNumber, Err: err}
}
