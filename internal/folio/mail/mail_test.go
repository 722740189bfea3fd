package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_SendInvitation(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p", From: "cms@example.com"})
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	var gotAddr string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		require.NotNil(t, a)
		require.Equal(t, "cms@example.com", from)
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	link := "https://cms.example.com/accept?token=abc"
	require.NoError(t, m.SendInvitation(context.Background(), "alice@example.com", link))

	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.Equal(t, []string{"alice@example.com"}, gotTo)
	require.Contains(t, gotMsg, "To: alice@example.com\r\n")
	require.Contains(t, gotMsg, link)
	require.True(t, strings.Contains(gotMsg, "Subject: "), gotMsg)
}

func TestSMTPMailer_Errors(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "cms@example.com"})
	require.Error(t, err)
	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"})
	require.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", From: "cms@example.com"})
	require.NoError(t, err)
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }

	err = m.SendInvitation(context.Background(), "alice@example.com", "x")
	require.ErrorContains(t, err, "connection refused")

	err = m.SendInvitation(context.Background(), "alice@example.com\r\nBcc: evil@example.com", "x")
	require.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	require.NoError(t, LogMailer{}.SendInvitation(context.Background(), "alice@example.com", "link"))
}
