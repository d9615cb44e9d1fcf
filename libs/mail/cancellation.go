// Package mail renders and sends the mails the job queue carries.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/gobarber/libs/datefmt"
	"github.com/md-rashed-zaman/gobarber/libs/email"
	"github.com/md-rashed-zaman/gobarber/libs/events"
	"github.com/md-rashed-zaman/gobarber/libs/jobqueue"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
)

const templateCancellation = "cancellation"

type Delivery struct {
	JobID         string
	AppointmentID int64
	Recipient     string
	Subject       string
	SentAt        time.Time
}

// DeliveryLog remembers which jobs already produced a mail so a redelivered
// job does not send twice.
type DeliveryLog interface {
	Delivered(ctx context.Context, jobID string) (bool, error)
	Record(ctx context.Context, d Delivery) error
}

type copyText struct {
	subject string
	body    *template.Template
}

var copies = map[datefmt.Locale]copyText{
	datefmt.PtBR: {
		subject: "Agendamento cancelado",
		body: template.Must(template.New("pt-BR").Parse(`Olá, {{.Provider}}

Houve um cancelamento de horário, confira os detalhes abaixo:

Cliente: {{.Requester}}
Data/hora: {{.When}}

O horário está novamente disponível para novos agendamentos.

Equipe GoBarber
`)),
	},
	datefmt.EnUS: {
		subject: "Appointment canceled",
		body: template.Must(template.New("en-US").Parse(`Hello, {{.Provider}}

An appointment was canceled. Details:

Client: {{.Requester}}
Date/time: {{.When}}

The slot is available for new bookings again.

The GoBarber team
`)),
	},
}

type CancellationConfig struct {
	Locale   datefmt.Locale
	Location *time.Location
}

// CancellationHandler handles jobs of kind events.KindCancellationMail.
type CancellationHandler struct {
	sender email.Sender
	log    DeliveryLog
	logger *slog.Logger
	copy   copyText
	locale datefmt.Locale
	loc    *time.Location
	now    func() time.Time
}

func NewCancellationHandler(sender email.Sender, log DeliveryLog, logger *slog.Logger, cfg CancellationConfig) *CancellationHandler {
	c, ok := copies[cfg.Locale]
	if !ok {
		c = copies[datefmt.Default]
		cfg.Locale = datefmt.Default
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &CancellationHandler{
		sender: sender,
		log:    log,
		logger: logger,
		copy:   c,
		locale: cfg.Locale,
		loc:    cfg.Location,
		now:    time.Now,
	}
}

func (h *CancellationHandler) Handle(ctx context.Context, job jobqueue.Job) error {
	var snap events.CancellationRequested
	if err := job.Decode(&snap); err != nil {
		return backoff.Permanent(fmt.Errorf("decode cancellation snapshot: %w", err))
	}
	if strings.TrimSpace(snap.Provider.Email) == "" {
		return backoff.Permanent(errors.New("cancellation snapshot has no provider email"))
	}

	done, err := h.log.Delivered(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("check delivery log: %w", err)
	}
	if done {
		h.logger.Info("cancellation mail already delivered", "job_id", job.ID, "appointment_id", snap.AppointmentID)
		return nil
	}

	msg, err := h.render(snap)
	if err != nil {
		return backoff.Permanent(err)
	}
	if err := h.sender.Send(ctx, msg); err != nil {
		metrics.EmailsSent.WithLabelValues(templateCancellation, "failed").Inc()
		return err
	}
	metrics.EmailsSent.WithLabelValues(templateCancellation, "sent").Inc()

	// The mail is out; a failed log write only risks a duplicate on redelivery.
	if err := h.log.Record(ctx, Delivery{
		JobID:         job.ID,
		AppointmentID: snap.AppointmentID,
		Recipient:     msg.To,
		Subject:       msg.Subject,
		SentAt:        h.now().UTC(),
	}); err != nil {
		h.logger.Error("record delivery failed", "job_id", job.ID, "err", err)
	}
	return nil
}

func (h *CancellationHandler) render(snap events.CancellationRequested) (email.Message, error) {
	var body bytes.Buffer
	err := h.copy.body.Execute(&body, struct {
		Provider  string
		Requester string
		When      string
	}{
		Provider:  snap.Provider.Name,
		Requester: snap.Requester.Name,
		When:      datefmt.Appointment(snap.Date.In(h.loc), h.locale),
	})
	if err != nil {
		return email.Message{}, fmt.Errorf("render cancellation mail: %w", err)
	}
	return email.Message{
		To:      snap.Provider.Email,
		ToName:  snap.Provider.Name,
		Subject: h.copy.subject,
		Body:    body.String(),
	}, nil
}
