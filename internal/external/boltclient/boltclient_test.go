package boltclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/external/boltclient"
)

func TestBroadcast_DecodesSuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/broadcast", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"txid": "tx-1", "sender": "SP-a", "recipient": "SP-b", "amount": 100, "currency": "BRL", "price": 500,
		})
	}))
	defer srv.Close()

	client := boltclient.New(srv.URL, time.Second)
	result, err := client.Broadcast(context.Background(), []byte("serialized"))
	require.NoError(t, err)
	assert.Equal(t, "tx-1", result.TxID)
	assert.Equal(t, int64(100), result.Amount)
}

func TestVerifyStatus_DecodesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status/tx-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "Success"})
	}))
	defer srv.Close()

	client := boltclient.New(srv.URL, time.Second)
	status, err := client.VerifyStatus(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.True(t, status.Terminal())
}

func TestDoJSON_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := boltclient.New(srv.URL, time.Second)
	_, err := client.Broadcast(context.Background(), []byte("serialized"))
	require.Error(t, err)
}

func TestDoJSON_ClientErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("rejected"))
	}))
	defer srv.Close()

	client := boltclient.New(srv.URL, time.Second)
	_, err := client.Broadcast(context.Background(), []byte("serialized"))
	require.Error(t, err)
}
