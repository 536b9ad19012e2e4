package notify

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"

	"github.com/kirinyoku/parkgo/internal/domain"
)

type message struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
	sms     *template.Template
}

func (m message) render(data messageData) (Email, error) {
	var subject, text, html bytes.Buffer

	if err := m.subject.Execute(&subject, data); err != nil {
		return Email{}, err
	}
	if err := m.text.Execute(&text, data); err != nil {
		return Email{}, err
	}
	if err := m.html.Execute(&html, data); err != nil {
		return Email{}, err
	}

	return Email{Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}

const window = `{{.Reservation.StartTime.Format "Mon 02 Jan 15:04"}} - {{.Reservation.EndTime.Format "Mon 02 Jan 15:04"}}`

const htmlLayout = `<p>Hi {{.Name}},</p>
<p>{{template "body" .}}</p>
<p><strong>{{.Location}}</strong>{{if .Address}}<br>{{.Address}}{{end}}<br>
` + window + `</p>
<p>Reservation {{.Reservation.ReservationID}}</p>`

func newMessage(subject, body, sms string) message {
	m := message{
		subject: template.Must(template.New("subject").Parse(subject)),
		text: template.Must(template.New("text").Parse(
			"Hi {{.Name}},\n\n" + body + "\n\n{{.Location}}\n" + window +
				"\n\nReservation {{.Reservation.ReservationID}}\n")),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(htmlLayout)),
	}
	htmltemplate.Must(m.html.New("body").Parse(body))
	if sms != "" {
		m.sms = template.Must(template.New("sms").Parse(sms))
	}
	return m
}

var messages = map[domain.EventType]message{
	domain.EventReservationConfirmed: newMessage(
		"Your parking at {{.Location}} is confirmed",
		"We received your payment of {{.Amount}}. Your spot is reserved.",
		"ParkGo: {{.Location}} confirmed for "+window+".",
	),
	domain.EventReservationCancelled: newMessage(
		"Your parking at {{.Location}} was cancelled",
		"Your reservation was cancelled{{with .Reservation.Reason}} ({{.}}){{end}}. Any payment taken will be refunded.",
		"ParkGo: your reservation at {{.Location}} was cancelled.",
	),
	domain.EventReservationExpired: newMessage(
		"Your parking reservation at {{.Location}} expired",
		"We did not receive the payment in time, so the spot was released.",
		"",
	),
	domain.EventReservationExtended: newMessage(
		"Your parking at {{.Location}} was extended",
		"Your reservation now ends at {{.Reservation.EndTime.Format \"15:04 on Mon 02 Jan\"}}.",
		"",
	),
	domain.EventReservationCompleted: newMessage(
		"Thanks for parking at {{.Location}}",
		"Your reservation is complete. We hope to see you again.",
		"",
	),
	domain.EventRefundRequested: newMessage(
		"A refund is on its way",
		"Your payment of {{.Amount}} arrived after the reservation had ended, so we are refunding it.",
		"",
	),
}
