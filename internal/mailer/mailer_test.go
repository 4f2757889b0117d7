package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"lessonhub/internal/model"
)

func TestNewParsesAdminList(t *testing.T) {
	log := zerolog.Nop()
	m := New(Config{AdminEmails: " a@x.com, b@x.com ,, "}, &log)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, m.admins)
}

func TestNotificationSkippedWithoutAPIKey(t *testing.T) {
	log := zerolog.Nop()
	m := New(Config{AdminEmails: "admin@x.com"}, &log)

	res := m.NotifyApplication(context.Background(), &model.Application{}, &model.Section{}, "u@x.com")
	assert.True(t, res.Skipped)
	assert.False(t, res.OK)
	assert.NoError(t, res.Err)

	res = m.NotifyCancellation(context.Background(), "u@x.com", &model.Section{}, "")
	assert.True(t, res.Skipped)
}

func TestNotificationSkippedWithoutRecipients(t *testing.T) {
	log := zerolog.Nop()
	m := New(Config{APIKey: "re_test"}, &log)

	res := m.NotifyApplication(context.Background(), &model.Application{}, &model.Section{}, "u@x.com")
	assert.True(t, res.Skipped)

	res = m.NotifyCancellation(context.Background(), "", &model.Section{}, "")
	assert.True(t, res.Skipped)
}

func TestFormatWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 7, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-01 09:00 ~ 2026-03-07 18:00", formatWindow(&start, &end))
	assert.Equal(t, " ~ 2026-03-07 18:00", formatWindow(nil, &end))
	assert.Equal(t, " ~ ", formatWindow(nil, nil))
}
