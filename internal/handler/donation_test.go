package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/payapp/internal/handler"
	"github.com/sakif/payapp/internal/model"
)

func decodeQR(t *testing.T, rr *httptest.ResponseRecorder) handler.QRResponse {
	t.Helper()
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var res handler.QRResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res
}

func TestHandleQRGenerate_Success(t *testing.T) {
	app := newTestApp(t)
	userID, _ := app.creator(t, "alice", "alice@okbank")

	rr := app.do(postForm("/qr-generate/alice", url.Values{"amount": {"100"}}))

	require.Equal(t, http.StatusOK, rr.Code)
	res := decodeQR(t, rr)
	assert.True(t, res.Success)
	assert.Equal(t, "upi://pay?pa=alice@okbank&am=100&pn=alice", res.UPIURL)
	assert.True(t, strings.HasPrefix(res.QRCode, "data:image/png;base64,"))
	assert.Empty(t, res.Error)

	counters, err := app.store.GetCounters(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counters.QRGenerations)
}

func TestHandleQRGenerate_Errors(t *testing.T) {
	app := newTestApp(t)
	app.creator(t, "alice", "alice@okbank")
	app.creator(t, "nopay", "")

	tests := []struct {
		name       string
		target     string
		amount     string
		wantStatus int
		wantError  string
	}{
		{"unknown creator", "/qr-generate/ghost", "10", http.StatusNotFound, ""},
		{"no payment id", "/qr-generate/nopay", "10", http.StatusUnprocessableEntity, "Creator has no UPI ID."},
		{"no payment id wins over bad amount", "/qr-generate/nopay", "abc", http.StatusUnprocessableEntity, "Creator has no UPI ID."},
		{"zero", "/qr-generate/alice", "0", http.StatusBadRequest, "Invalid amount."},
		{"negative", "/qr-generate/alice", "-5", http.StatusBadRequest, "Invalid amount."},
		{"decimal", "/qr-generate/alice", "10.50", http.StatusBadRequest, "Invalid amount."},
		{"missing", "/qr-generate/alice", "", http.StatusBadRequest, "Invalid amount."},
		{"above maximum", "/qr-generate/alice", "1000000001", http.StatusBadRequest, "Invalid amount."},
		{"max int64", "/qr-generate/alice", "9223372036854775807", http.StatusBadRequest, "Invalid amount."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(postForm(tt.target, url.Values{"amount": {tt.amount}}))

			assert.Equal(t, tt.wantStatus, rr.Code)
			res := decodeQR(t, rr)
			assert.False(t, res.Success)
			assert.Empty(t, res.UPIURL)
			assert.NotEmpty(t, res.Error)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, res.Error)
			}
		})
	}
}

func TestHandleQRGenerate_RejectedAttemptsAreNotCounted(t *testing.T) {
	app := newTestApp(t)
	userID, _ := app.creator(t, "alice", "alice@okbank")

	app.do(postForm("/qr-generate/alice", url.Values{"amount": {"nope"}}))
	app.do(postForm("/qr-generate/alice", url.Values{"amount": {"25"}}))
	app.do(postForm("/qr-generate/alice", url.Values{"amount": {"25"}}))

	counters, err := app.store.GetCounters(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counters.QRGenerations)

	stats, err := app.store.AttemptStats(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 50, stats.TotalAmount)
	assert.EqualValues(t, 25, stats.HighestAmount)
}

func TestHandleResetAnalytics(t *testing.T) {
	app := newTestApp(t)
	userID, token := app.creator(t, "alice", "alice@okbank")

	app.do(postForm("/qr-generate/alice", url.Values{"amount": {"40"}}))
	app.do(httptest.NewRequest(http.MethodGet, "/profile/alice", nil))

	rr := app.do(withSession(postForm("/reset-analytics", nil), token))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
	assert.NotNil(t, cookieNamed(rr, "flash"))

	counters, err := app.store.GetCounters(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, counters.PageViews)
	assert.Zero(t, counters.QRGenerations)

	stats, err := app.store.AttemptStats(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAmount)
}

func TestHandleResetAnalytics_RequiresLogin(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(postForm("/reset-analytics", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "/login?next="))
}

func TestHandleDashboard(t *testing.T) {
	app := newTestApp(t)
	_, token := app.creator(t, "alice", "alice@okbank")
	app.do(postForm("/qr-generate/alice", url.Values{"amount": {"75"}}))

	rr := app.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), token))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Welcome, alice")
	assert.Contains(t, body, "75")
}

func TestHandleDashboardAPI(t *testing.T) {
	app := newTestApp(t)
	_, token := app.creator(t, "alice", "alice@okbank")
	app.do(postForm("/qr-generate/alice", url.Values{"amount": {"30"}}))
	app.do(postForm("/qr-generate/alice", url.Values{"amount": {"70"}}))

	rr := app.do(withSession(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), token))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Counters struct {
			QRGenerations int64 `json:"qrGenerations"`
		} `json:"counters"`
		Stats struct {
			TotalAmount   int64 `json:"totalAmount"`
			HighestAmount int64 `json:"highestAmount"`
		} `json:"stats"`
		Recent []json.RawMessage `json:"recent"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.EqualValues(t, 2, body.Counters.QRGenerations)
	assert.EqualValues(t, 100, body.Stats.TotalAmount)
	assert.EqualValues(t, 70, body.Stats.HighestAmount)
	assert.Len(t, body.Recent, 2)
}

func TestHandleDashboardAPI_LargestAmountsStillAdd(t *testing.T) {
	app := newTestApp(t)
	_, token := app.creator(t, "alice", "alice@okbank")
	for i := 0; i < 2; i++ {
		rr := app.do(postForm("/qr-generate/alice", url.Values{"amount": {"1000000000"}}))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := app.do(postForm("/qr-generate/alice", url.Values{"amount": {"9223372036854775807"}}))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = app.do(withSession(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), token))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Stats struct {
			TotalAmount   int64 `json:"totalAmount"`
			HighestAmount int64 `json:"highestAmount"`
		} `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.EqualValues(t, 2*model.MaxAmount, body.Stats.TotalAmount)
	assert.EqualValues(t, model.MaxAmount, body.Stats.HighestAmount)
}

func TestHandleDashboardAPI_Unauthenticated(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
