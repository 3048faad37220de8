package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Message is the payload posted to the webhook.
type Message struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// Notify posts a run outcome to the webhook. Notification problems are
// logged and otherwise ignored; they never fail a run. A nil url (empty
// string) disables notification.
func Notify(ctx context.Context, url, status, detail string) {
	if url == "" {
		return
	}
	payload, err := json.Marshal(Message{Status: status, Detail: detail})
	if err != nil {
		log.Warn().Msgf("Failed to encode notification: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		log.Warn().Msgf("Failed to build notification request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Warn().Msgf("Failed to send notification: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		log.Warn().Msgf("Notification webhook answered %s", resp.Status)
	}
}
