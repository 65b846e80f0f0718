package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAuth_LabelsByStatusClass(t *testing.T) {
	m := New()

	m.ObserveAuth("login", nil)
	m.ObserveAuth("login", common.ErrInvalidCredentials)
	m.ObserveAuth("login", common.ErrInvalidCredentials)
	m.ObserveAuth("login", errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthOps.WithLabelValues("login", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthOps.WithLabelValues("login", "client-error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthOps.WithLabelValues("login", "server-error")))
}

func TestRecordMailDelivery(t *testing.T) {
	m := New()

	m.RecordMailDelivery(MailSent)
	m.RecordMailDelivery(MailDropped)
	m.RecordMailDelivery(MailSent)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MailEvents.WithLabelValues(MailSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MailEvents.WithLabelValues(MailDropped)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.MailEvents))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/api/v1/users/profile", 200, 15*time.Millisecond)
	m.ObserveAuth("register", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	s := string(body)

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(s, `gophauth_http_request_duration_seconds_count{method="GET",route="/api/v1/users/profile",status="200"} 1`), s)
	assert.Contains(t, s, `gophauth_auth_operations_total{operation="register",outcome="ok"} 1`)
	assert.Contains(t, s, "go_goroutines")
}
