package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushSendsKeyAndDecodesResponse(t *testing.T) {
	var gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(APIKeyHeader)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		switch r.URL.Path {
		case "/deposit":
			w.Write([]byte(`{"status":"ok"}`))
		case "/jewel":
			w.Write([]byte("accepted"))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("bad gateway"))
		}
	}))
	defer srv.Close()

	c := New(Config{DepositLoanURL: srv.URL + "/deposit", JewelURL: srv.URL + "/jewel", APIKey: "k1", Timeout: time.Second}, nil)
	ctx := context.Background()

	resp, err := c.Push(ctx, DepositLoan, map[string]any{"sdsCode": "B1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp))
	assert.Equal(t, "k1", gotKey)
	assert.JSONEq(t, `{"sdsCode":"B1"}`, gotBody)

	resp, err = c.Push(ctx, Jewel, map[string]any{})
	require.NoError(t, err)
	var s string
	require.NoError(t, json.Unmarshal(resp, &s))
	assert.Equal(t, "accepted", s)
}

func TestPushReportsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	c := New(Config{DepositLoanURL: srv.URL}, nil)
	_, err := c.Push(context.Background(), DepositLoan, map[string]any{})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	_, err = c.Push(context.Background(), Jewel, map[string]any{})
	assert.Error(t, err, "jewel URL not configured")
}

func TestPushHonoursTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{DepositLoanURL: srv.URL, Timeout: 20 * time.Millisecond}, nil)
	_, err := c.Push(context.Background(), DepositLoan, map[string]any{})
	assert.Error(t, err)
}
