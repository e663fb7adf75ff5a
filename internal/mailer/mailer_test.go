package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailer_RendersAndSends(t *testing.T) {
	var gotTo, gotFrom, gotSubject, gotBody string
	send := func(to, from, subject, body string) error {
		gotTo, gotFrom, gotSubject, gotBody = to, from, subject, body
		return nil
	}

	m, err := NewMailer(send, "login@webmaker.org", "Webmaker", "", 30*time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Notify(context.Background(), "webmaker@example.com", "Ab3x9"))

	assert.Equal(t, "webmaker@example.com", gotTo)
	assert.Equal(t, "login@webmaker.org", gotFrom)
	assert.Equal(t, "Your Webmaker login code", gotSubject)
	assert.Contains(t, gotBody, "Ab3x9")
	assert.Contains(t, gotBody, "30 minutes")
}

func TestMailer_SendFailure(t *testing.T) {
	send := func(string, string, string, string) error {
		return errors.New("relay unavailable")
	}
	m, err := NewMailer(send, "login@webmaker.org", "Webmaker", "", time.Minute)
	require.NoError(t, err)

	err = m.Notify(context.Background(), "webmaker@example.com", "Ab3x9")
	assert.ErrorContains(t, err, "relay unavailable")
}

func TestNewMailer_Validation(t *testing.T) {
	_, err := NewMailer(nil, "f", "s", "", time.Minute)
	assert.Error(t, err)

	_, err = NewMailer(func(string, string, string, string) error { return nil },
		"f", "s", "{{.Broken", time.Minute)
	assert.Error(t, err)
}
