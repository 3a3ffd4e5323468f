package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/passhport/passhportd/internal/config"
	"github.com/passhport/passhportd/internal/models"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// UserCreated tells the administrators that a user was added
func (s *Sender) UserCreated(user *models.User) error {
	e := s.newEmail(fmt.Sprintf("passhport: user %s created", user.Email))
	e.Text = []byte(fmt.Sprintf(
		"Hello,\n\nThe following user was added to passhport on %s.\n\n%s\n\npasshportd\n",
		time.Now().Format("2006-01-02 15:04:05"), user.String(),
	))
	return s.deliver(e)
}

// UserDeleted tells the administrators that a user was removed
func (s *Sender) UserDeleted(userEmail string) error {
	e := s.newEmail(fmt.Sprintf("passhport: user %s deleted", userEmail))
	e.Text = []byte(fmt.Sprintf(
		"Hello,\n\nThe user %s was removed from passhport on %s.\nTheir SSH key no longer grants access.\n\npasshportd\n",
		userEmail, time.Now().Format("2006-01-02 15:04:05"),
	))
	return s.deliver(e)
}

func (s *Sender) newEmail(subject string) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.NotifyEmail}
	e.Subject = subject
	return e
}

func (s *Sender) deliver(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %v: %v", e.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %v: %s", e.To, e.Subject)
	return nil
}
