package email

import (
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/config"
)

// ConfigFromEnv reads MAIL_HOST, MAIL_PORT, MAIL_USER, MAIL_PASS, MAIL_FROM,
// MAIL_STARTTLS and MAIL_TIMEOUT.
func ConfigFromEnv() SMTPConfig {
	return SMTPConfig{
		Host:     config.String("MAIL_HOST", ""),
		Port:     config.String("MAIL_PORT", "1025"),
		Username: config.String("MAIL_USER", ""),
		Password: config.String("MAIL_PASS", ""),
		From:     config.String("MAIL_FROM", "Equipe GoBarber <noreply@gobarber.com>"),
		StartTLS: config.Bool("MAIL_STARTTLS", false),
		Timeout:  config.Duration("MAIL_TIMEOUT", 10*time.Second),
	}
}

// NewSender returns an SMTP sender, or a LogSender when no host is set.
func NewSender(cfg SMTPConfig, logger *slog.Logger) Sender {
	if cfg.Host == "" {
		logger.Warn("MAIL_HOST not set; mails are written to the log")
		return NewLogSender(logger)
	}
	return NewSMTPSender(cfg)
}
