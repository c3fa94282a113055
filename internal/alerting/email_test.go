package alerting

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"feedwatch/internal/config"
)

func TestEmailNotifierBuildsAndSendsMail(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	notifier := NewEmailNotifier(config.EmailConfig{
		Host:        "mail.internal",
		Port:        587,
		FromAddress: "feedwatch@example.com",
		Recipients:  []string{"ops@example.com", "data@example.com"},
	}, zerolog.Nop())
	notifier.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := notifier.Send(context.Background(), missingAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotAddr != "mail.internal:587" {
		t.Fatalf("unexpected addr %q", gotAddr)
	}
	if gotFrom != "feedwatch@example.com" || len(gotTo) != 2 {
		t.Fatalf("unexpected envelope from=%q to=%v", gotFrom, gotTo)
	}

	mail := string(gotMsg)
	if !strings.Contains(mail, "Subject: Feed Alert: orders - MISSING") {
		t.Fatalf("subject missing from mail:\n%s", mail)
	}
	if !strings.Contains(mail, "COB Date: 2025-06-10") {
		t.Fatalf("body missing COB date:\n%s", mail)
	}
}

func TestEmailNotifierPropagatesSendFailure(t *testing.T) {
	notifier := NewEmailNotifier(config.EmailConfig{
		Host:       "mail.internal",
		Port:       587,
		Recipients: []string{"ops@example.com"},
	}, zerolog.Nop())
	notifier.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	if err := notifier.Send(context.Background(), missingAlert()); err == nil {
		t.Fatal("smtp failure should surface as error")
	}
}
