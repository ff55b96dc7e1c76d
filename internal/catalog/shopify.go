package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atom-ai-labs/cataloger/internal/record"
)

// DefaultShopifyAPIVersion is used when the caller does not pin one.
const DefaultShopifyAPIVersion = "2024-04"

const shopifyPageSize = 250

// ShopifyClient pulls the product catalog of one store through the Admin API.
type ShopifyClient struct {
	Domain      string
	AccessToken string
	APIVersion  string
	HTTP        *http.Client

	// BaseURL overrides the store URL, for tests.
	BaseURL string
}

func NewShopifyClient(domain, accessToken, apiVersion string, timeout time.Duration) *ShopifyClient {
	if apiVersion == "" {
		apiVersion = DefaultShopifyAPIVersion
	}
	return &ShopifyClient{
		Domain:      domain,
		AccessToken: accessToken,
		APIVersion:  apiVersion,
		HTTP:        &http.Client{Timeout: timeout},
	}
}

type shopifyVariant struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	InventoryQuantity int64  `json:"inventory_quantity"`
}

type shopifyProduct struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	Vendor      string `json:"vendor"`
	ProductType string `json:"product_type"`
	CreatedAt   string `json:"created_at"`
	Status      string `json:"status"`
	Tags        string `json:"tags"`
	Image       struct {
		Src string `json:"src"`
	} `json:"image"`
	Variants []shopifyVariant `json:"variants"`
}

func (c *ShopifyClient) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://" + c.Domain
}

// FetchProducts walks all product pages and flattens every variant into one
// row. Pagination follows the rel="next" cursor in the Link header.
func (c *ShopifyClient) FetchProducts(ctx context.Context) ([]record.Record, error) {
	var out []record.Record
	url := fmt.Sprintf("%s/admin/api/%s/products.json?limit=%d", c.baseURL(), c.APIVersion, shopifyPageSize)

	for url != "" {
		products, next, err := c.fetchPage(ctx, url)
		if err != nil {
			return nil, err
		}
		for _, prod := range products {
			for _, variant := range prod.Variants {
				out = append(out, flattenVariant(c.Domain, prod, variant))
			}
		}
		url = next
	}
	return out, nil
}

func (c *ShopifyClient) fetchPage(ctx context.Context, url string) ([]shopifyProduct, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("shopify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("shopify returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Products []shopifyProduct `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("decode shopify response: %w", err)
	}
	return payload.Products, nextPageURL(resp.Header.Get("Link")), nil
}

// nextPageURL extracts the rel="next" target from a Link header, or returns
// "" on the last page.
func nextPageURL(header string) string {
	for _, part := range strings.Split(header, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

func flattenVariant(domain string, prod shopifyProduct, variant shopifyVariant) record.Record {
	return record.FromPairs(
		record.Field{Name: "product_id", Value: prod.ID},
		record.Field{Name: "product_title", Value: prod.Title},
		record.Field{Name: "variant_id", Value: variant.ID},
		record.Field{Name: "variant_title", Value: variant.Title},
		record.Field{Name: "sku", Value: variant.SKU},
		record.Field{Name: "price", Value: variant.Price},
		record.Field{Name: "inventory_quantity", Value: variant.InventoryQuantity},
		record.Field{Name: "product_vendor", Value: prod.Vendor},
		record.Field{Name: "product_type", Value: prod.ProductType},
		record.Field{Name: "created_at", Value: prod.CreatedAt},
		record.Field{Name: "status", Value: prod.Status},
		record.Field{Name: "tags", Value: prod.Tags},
		record.Field{Name: "main_image_url", Value: prod.Image.Src},
		record.Field{Name: "url_ref", Value: fmt.Sprintf("https://%s/products/%s", domain, prod.Handle)},
	)
}
