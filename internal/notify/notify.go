// Package notify reaches candidates outside the call: SMS and email with a
// re-booking link when the automated process gives up on an interview.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

// Config holds the outbound channels.
type Config struct {
	// Twilio SMS.
	AccountSID string
	AuthToken  string
	FromNumber string
	// SMTP email.
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	FromMail string
	// BookingBaseURL is where the candidate re-books; the invite token is
	// appended as a path segment.
	BookingBaseURL string
}

// Service sends candidate notifications. Channel failures are logged and do
// not abort the other channel.
type Service struct {
	cfg    Config
	client *twilio.RestClient
	// sendMail is swappable in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(cfg Config) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Service{cfg: cfg, client: client, sendMail: smtp.SendMail}
}

// BookingLink builds the candidate's re-booking URL from the invite token.
func (s *Service) BookingLink(cand *model.Candidate) string {
	return strings.TrimRight(s.cfg.BookingBaseURL, "/") + "/" + cand.InviteToken
}

// InterviewFailed notifies a candidate that the automated interview could not
// be completed, with the link to book a new slot.
func (s *Service) InterviewFailed(ctx context.Context, cand *model.Candidate, interviewID int64) error {
	link := s.BookingLink(cand)
	body := fmt.Sprintf(
		"株式会社パインズです。AI面接のお電話がつながりませんでした。お手数ですが、こちらから再予約をお願いいたします: %s",
		link,
	)

	var firstErr error
	if cand.Phone != "" {
		if err := s.sendSMS(cand.Phone, body); err != nil {
			log.Printf("notify: SMS to candidate %d: %v", cand.ID, err)
			firstErr = err
		}
	}
	if cand.Email != "" {
		if err := s.sendEmail(ctx, cand.Email, "AI面接 再予約のお願い", body); err != nil {
			log.Printf("notify: email to candidate %d: %v", cand.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	log.Printf("notify: candidate %d notified for failed interview %d", cand.ID, interviewID)
	return firstErr
}

func (s *Service) sendSMS(to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.cfg.FromNumber)
	params.SetBody(body)
	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

func (s *Service) sendEmail(_ context.Context, to, subject, body string) error {
	if s.cfg.SMTPHost == "" {
		return fmt.Errorf("smtp not configured")
	}
	msg := strings.Join([]string{
		"From: " + s.cfg.FromMail,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if s.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)
	}
	addr := s.cfg.SMTPHost + ":" + s.cfg.SMTPPort
	if err := s.sendMail(addr, auth, s.cfg.FromMail, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
