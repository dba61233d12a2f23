package abrp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/abrpsync/internal/telemetry"
)

func testRecord() telemetry.Record {
	return telemetry.Record{"soc": 72.0, "utc": int64(1756555200)}
}

func TestPushSuccess(t *testing.T) {
	var gotPath, gotToken, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	result := client.Push(context.Background(), "tok-abc", testRecord())

	assert.True(t, result.Success())
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.NoError(t, result.Err)

	assert.Equal(t, "/tlm/send", gotPath)
	assert.Equal(t, "tok-abc", gotToken)
	assert.Equal(t, "APIKEY "+apiKeyIdentifier, gotAuth)

	tlm, ok := gotBody["tlm"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 72.0, tlm["soc"])
}

func TestPushAPIRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","missing":["utc"]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	result := client.Push(context.Background(), "tok-abc", testRecord())

	assert.False(t, result.Success())
	assert.Equal(t, OutcomeAPIRejected, result.Outcome)
	assert.Equal(t, []string{"utc"}, result.Missing)
	assert.ErrorIs(t, result.Err, ErrNotOK)
}

func TestPushMalformedResponse(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "<html>maintenance</html>"},
		{"missing status", `{"result":"ok"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(server.URL + "/")
			result := client.Push(context.Background(), "tok-abc", testRecord())

			assert.Equal(t, OutcomeMalformedResponse, result.Outcome)
			assert.Error(t, result.Err)
		})
	}
}

func TestPushHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	result := client.Push(context.Background(), "bad-token", testRecord())

	assert.Equal(t, OutcomeHTTPError, result.Outcome)
	assert.Equal(t, http.StatusUnauthorized, result.StatusCode)
	assert.Error(t, result.Err)
}

func TestPushRetriesTransientServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	result := client.Push(context.Background(), "tok-abc", testRecord())

	// 503 重试对调用方透明，最终成功
	assert.True(t, result.Success())
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestPushRetriesExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	result := client.Push(context.Background(), "tok-abc", testRecord())

	assert.Equal(t, OutcomeHTTPError, result.Outcome)
	assert.Equal(t, http.StatusBadGateway, result.StatusCode)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestPushNonRetryableStatusNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	result := client.Push(context.Background(), "tok-abc", testRecord())

	assert.Equal(t, OutcomeHTTPError, result.Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPushTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 立即关闭，模拟不可达

	client := NewClient(server.URL + "/")
	result := client.Push(context.Background(), "tok-abc", testRecord())

	assert.Equal(t, OutcomeTransportError, result.Outcome)
	assert.Error(t, result.Err)
}

func TestFetchNextCharge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tlm/get_next_charge", r.URL.Path)
		assert.Equal(t, "tok-abc", r.URL.Query().Get("token"))
		w.Write([]byte(`{"status":"ok","next_charge":80}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	level, err := client.FetchNextCharge(context.Background(), "tok-abc")

	require.NoError(t, err)
	require.NotNil(t, level)
	assert.Equal(t, 80.0, *level)
}

func TestFetchNextChargeNull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","next_charge":null}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	level, err := client.FetchNextCharge(context.Background(), "tok-abc")

	require.NoError(t, err)
	assert.Nil(t, level)
}

func TestFetchNextChargeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	level, err := client.FetchNextCharge(context.Background(), "tok-abc")

	assert.ErrorIs(t, err, ErrNotOK)
	assert.Nil(t, level)
}

func TestNewClientDefaultBaseURL(t *testing.T) {
	client := NewClient("")
	assert.Equal(t, DefaultBaseURL, client.baseURL)
}
