// TrelloSink, grounded on original_source's trello_card_service.rs: it
// files one card per dispute notification rather than sending a message
// to a person, so Notify's subject/body map onto a card's name/desc.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/b2pix/engine/internal/apperr"
)

const trelloBaseURL = "https://api.trello.com/1"

// TrelloSink creates a card on a fixed board list for every notification.
type TrelloSink struct {
	apiKey     string
	token      string
	listID     string
	baseURL    string
	httpClient *http.Client
}

func NewTrelloSink(apiKey, token, listID string) *TrelloSink {
	return &TrelloSink{apiKey: apiKey, token: token, listID: listID, baseURL: trelloBaseURL, httpClient: &http.Client{}}
}

type createCardRequest struct {
	Name   string `json:"name"`
	Desc   string `json:"desc"`
	IDList string `json:"idList"`
	Key    string `json:"key"`
	Token  string `json:"token"`
}

func (s *TrelloSink) Notify(ctx context.Context, subject, body string) error {
	payload := createCardRequest{Name: subject, Desc: body, IDList: s.listID, Key: s.apiKey, Token: s.token}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "encode trello card")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/cards", bytes.NewReader(encoded))
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "build trello request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "call trello")
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return apperr.New(apperr.ExternalRetryable, "trello returned %d: %s", resp.StatusCode, data)
	}
	if resp.StatusCode >= 400 {
		return apperr.New(apperr.ExternalTerminal, "trello returned %d: %s", resp.StatusCode, data)
	}
	return nil
}
