package email

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("from@example.com", []string{"a@example.com", "b@example.com"}, "Bill\nmatched", "body"))

	assert.True(t, strings.HasPrefix(msg, "From: from@example.com\r\n"))
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: Bill matched\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nbody"))
}

func TestSendRequiresRecipients(t *testing.T) {
	err := NewSMTP(Config{Host: "localhost", Port: 25}).Send(context.Background(), nil, "s", "b")
	assert.ErrorIs(t, err, ErrNoRecipients)
}
