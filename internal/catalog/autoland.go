package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atom-ai-labs/cataloger/internal/record"
)

// AutolandEndpoint is the dealer's public used-vehicle listing API.
const AutolandEndpoint = "https://www.autoland.com.co/wp-json/vehiculosWhatsapp/v1/usados"

// AutolandTable is the fixed destination table for this feed; every sync
// appends into it rather than creating a dated table per run.
const AutolandTable = "20250801_autoland"

// autolandFields is the projection applied to each vehicle, in column order.
var autolandFields = []string{
	"vehicle_id", "title", "make", "year", "price", "sale_price",
	"mileage", "transmission", "cilindraje", "url", "image_link",
	"serie", "type", "city",
}

// AutolandClient pulls the full used-vehicle inventory in one request. The
// price window in the request body is wide open on purpose.
type AutolandClient struct {
	Endpoint string
	HTTP     *http.Client
}

func NewAutolandClient(timeout time.Duration) *AutolandClient {
	return &AutolandClient{
		Endpoint: AutolandEndpoint,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// FetchVehicles queries the feed and projects each vehicle onto the fixed
// column set. Fields the feed omits come back as nulls.
func (c *AutolandClient) FetchVehicles(ctx context.Context) ([]record.Record, error) {
	body, err := json.Marshal(map[string]any{
		"precio_min": 0,
		"precio_max": 25000000000,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("autoland request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("autoland returned %d: %s", resp.StatusCode, string(detail))
	}

	var payload struct {
		Autos []record.Record `json:"autos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode autoland response: %w", err)
	}

	out := make([]record.Record, 0, len(payload.Autos))
	for _, auto := range payload.Autos {
		rec := record.New()
		for _, name := range autolandFields {
			value, _ := auto.Get(name)
			rec.Set(name, value)
		}
		out = append(out, rec)
	}
	return out, nil
}
