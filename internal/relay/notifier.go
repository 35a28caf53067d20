package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"log"
	"net/http"
	"time"
)

const triggerTimeout = 5 * time.Second

// Notifier pings the dispenser device after a committed purchase. The
// signal is best-effort: the transfer is already final, so delivery
// failures are logged and dropped.
type Notifier struct {
	url    string
	client *http.Client
}

// New builds a notifier for the device at baseURL. insecure skips TLS
// verification for devices serving self-signed certificates on a LAN.
func New(baseURL string, insecure bool) *Notifier {
	client := &http.Client{Timeout: triggerTimeout}
	if insecure {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Notifier{url: baseURL, client: client}
}

// Trigger fires POST /trigger with an empty JSON body.
func (n *Notifier) Trigger(ctx context.Context) {
	if n == nil || n.url == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url+"/trigger", bytes.NewReader([]byte("{}")))
	if err != nil {
		log.Printf("relay trigger: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("relay trigger: %v", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		log.Printf("relay trigger: device answered %d", resp.StatusCode)
	}
}

// DispenseHook adapts Trigger to the settlement engine's post-success
// hook shape.
func (n *Notifier) DispenseHook() func() {
	return func() {
		n.Trigger(context.Background())
	}
}
