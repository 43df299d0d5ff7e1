package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BeaconSender is the fire-and-forget primitive used when the host is
// tearing down and asynchronous delivery cannot be relied upon to
// complete. Implementations must not retry and must return quickly.
type BeaconSender interface {
	Send(endpoint string, body []byte) error
}

// beaconTimeout bounds how long a teardown send may take.
const beaconTimeout = 2 * time.Second

// httpBeacon posts the serialized queue contents as a binary blob with a
// hard deadline. The response is drained and discarded; a non-2xx status
// is reported only so the pipeline can try its keep-alive fallback.
type httpBeacon struct {
	client *http.Client
	apiKey string
}

func newHTTPBeacon(apiKey string) *httpBeacon {
	return &httpBeacon{
		client: &http.Client{Timeout: beaconTimeout},
		apiKey: apiKey,
	}
}

func (b *httpBeacon) Send(endpoint string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("beacon endpoint returned %d", resp.StatusCode)
	}
	return nil
}
