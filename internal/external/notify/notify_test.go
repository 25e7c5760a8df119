package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAddrs(t *testing.T) {
	assert.Equal(t, "", joinAddrs(nil))
	assert.Equal(t, "a@b.com", joinAddrs([]string{"a@b.com"}))
	assert.Equal(t, "a@b.com, c@d.com", joinAddrs([]string{"a@b.com", "c@d.com"}))
}

func TestTrelloSink_Notify_FilesCardWithSubjectAndBody(t *testing.T) {
	var captured createCardRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cards", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewTrelloSink("key", "token", "list-1")
	sink.baseURL = srv.URL
	sink.httpClient = srv.Client()

	err := sink.Notify(context.Background(), "Dispute opened for buy-1", "details here")
	require.NoError(t, err)
	assert.Equal(t, "Dispute opened for buy-1", captured.Name)
	assert.Equal(t, "details here", captured.Desc)
	assert.Equal(t, "list-1", captured.IDList)
}

func TestTrelloSink_Notify_TerminalErrorOnClientFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := NewTrelloSink("key", "token", "list-1")
	sink.baseURL = srv.URL
	sink.httpClient = srv.Client()

	err := sink.Notify(context.Background(), "subject", "body")
	require.Error(t, err)
}

func TestTrelloSink_Notify_RetryableOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewTrelloSink("key", "token", "list-1")
	sink.baseURL = srv.URL
	sink.httpClient = srv.Client()

	err := sink.Notify(context.Background(), "subject", "body")
	require.Error(t, err)
}
