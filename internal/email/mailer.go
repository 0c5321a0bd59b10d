package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Delivery is one outgoing message. Send is all-or-nothing: every attachment goes or none does.
type Delivery struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, d Delivery) error
}

type TicketLine struct {
	Name     string
	Quantity int
}

type TicketEmailData struct {
	OrderNumber string
	EventName   string
	Venue       string
	StartDate   time.Time
	Lines       []TicketLine
	TicketCount int
}

var ticketEmail = template.Must(template.New("tickets").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <h2>Your tickets for {{.EventName}}</h2>
  <p>Order <strong>{{.OrderNumber}}</strong> is confirmed.</p>
  {{if .Venue}}<p>{{.Venue}}{{if not .StartDate.IsZero}}, {{.StartDate.Format "Mon 02 Jan 2006 15:04"}}{{end}}</p>{{end}}
  <ul>
  {{range .Lines}}  <li>{{.Quantity}} x {{.Name}}</li>
  {{end}}</ul>
  <p>{{.TicketCount}} ticket(s) are attached as PDF files. Show the QR code at the entrance.</p>
</body>
</html>
`))

func RenderTicketEmail(data TicketEmailData) (string, error) {
	var buf bytes.Buffer
	if err := ticketEmail.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render ticket email: %w", err)
	}
	return buf.String(), nil
}
