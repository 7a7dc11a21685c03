package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"agent-pricing-engine/internal/config"
)

// Source is the upstream catalog fetch boundary consumed by the Cache.
type Source interface {
	FetchProducts(ctx context.Context) ([]Product, error)
	FetchDiscounts(ctx context.Context) ([]Discount, error)
}

// ShopifyClient fetches products and discount codes from the Shopify admin
// API. It owns pagination traversal and retry on transient failures; callers
// see either a complete collection or an error.
type ShopifyClient struct {
	baseURL    string
	token      string
	pageSize   int
	maxRetries int
	httpc      *http.Client
}

func NewShopifyClient(cfg config.Config) *ShopifyClient {
	return &ShopifyClient{
		baseURL:    fmt.Sprintf("https://%s/admin/api/%s", cfg.Shopify.ShopURL, cfg.Shopify.APIVersion),
		token:      cfg.Shopify.AccessToken,
		pageSize:   cfg.Shopify.PageSize,
		maxRetries: cfg.Shopify.MaxRetries,
		httpc:      &http.Client{Timeout: cfg.ShopifyTimeout()},
	}
}

type productPayload struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	BodyHTML    string `json:"body_html"`
	Vendor      string `json:"vendor"`
	ProductType string `json:"product_type"`
	Handle      string `json:"handle"`
	Status      string `json:"status"`
	Variants    []struct {
		Price             string `json:"price"`
		InventoryQuantity int    `json:"inventory_quantity"`
	} `json:"variants"`
	Image *struct {
		Src string `json:"src"`
	} `json:"image"`
}

type priceRulePayload struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	ValueType  string     `json:"value_type"`
	Value      string     `json:"value"`
	TargetType string     `json:"target_type"`
	StartsAt   *time.Time `json:"starts_at"`
	EndsAt     *time.Time `json:"ends_at"`
}

// FetchProducts walks every page of /products.json.
func (c *ShopifyClient) FetchProducts(ctx context.Context) ([]Product, error) {
	url := fmt.Sprintf("%s/products.json?limit=%d", c.baseURL, c.pageSize)

	var out []Product
	for url != "" {
		var page struct {
			Products []productPayload `json:"products"`
		}
		next, err := c.getJSON(ctx, url, &page)
		if err != nil {
			return nil, fmt.Errorf("fetch products: %w", err)
		}
		for _, p := range page.Products {
			out = append(out, toProduct(p))
		}
		url = next
	}
	return out, nil
}

// FetchDiscounts loads price rules, then the discount codes attached to each.
func (c *ShopifyClient) FetchDiscounts(ctx context.Context) ([]Discount, error) {
	url := fmt.Sprintf("%s/price_rules.json?limit=%d", c.baseURL, c.pageSize)

	var out []Discount
	for url != "" {
		var page struct {
			PriceRules []priceRulePayload `json:"price_rules"`
		}
		next, err := c.getJSON(ctx, url, &page)
		if err != nil {
			return nil, fmt.Errorf("fetch price rules: %w", err)
		}

		for _, rule := range page.PriceRules {
			var codes struct {
				DiscountCodes []struct {
					ID         int64  `json:"id"`
					Code       string `json:"code"`
					UsageCount int    `json:"usage_count"`
				} `json:"discount_codes"`
			}
			codesURL := fmt.Sprintf("%s/price_rules/%d/discount_codes.json", c.baseURL, rule.ID)
			if _, err := c.getJSON(ctx, codesURL, &codes); err != nil {
				return nil, fmt.Errorf("fetch discount codes for rule %d: %w", rule.ID, err)
			}

			value, err := strconv.ParseFloat(rule.Value, 64)
			if err != nil {
				log.Warn().Str("value", rule.Value).Int64("rule_id", rule.ID).Msg("unparseable price rule value, skipping")
				continue
			}
			for _, code := range codes.DiscountCodes {
				out = append(out, Discount{
					ID:         code.ID,
					Code:       code.Code,
					Title:      rule.Title,
					ValueType:  rule.ValueType,
					Value:      value,
					StartsAt:   rule.StartsAt,
					EndsAt:     rule.EndsAt,
					UsageCount: code.UsageCount,
					TargetType: rule.TargetType,
				})
			}
		}
		url = next
	}
	return out, nil
}

// getJSON performs a GET with retry on 429 and 5xx responses. It returns the
// URL of the next page (from the Link header) when one exists.
func (c *ShopifyClient) getJSON(ctx context.Context, url string, out any) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("X-Shopify-Access-Token", c.token)

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusOK:
				if readErr != nil {
					return "", readErr
				}
				if err := json.Unmarshal(body, out); err != nil {
					return "", fmt.Errorf("decode response: %w", err)
				}
				return nextPageURL(resp.Header.Get("Link")), nil
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
				if wait := retryAfter(resp.Header.Get("Retry-After")); wait > 0 {
					select {
					case <-ctx.Done():
						return "", ctx.Err()
					case <-time.After(wait):
					}
					continue
				}
			default:
				return "", fmt.Errorf("upstream status %d", resp.StatusCode)
			}
		}

		if attempt < c.maxRetries {
			backoff := time.Duration(attempt+1) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("giving up after %d retries: %w", c.maxRetries, lastErr)
}

func toProduct(p productPayload) Product {
	out := Product{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Handle:      p.Handle,
		Status:      p.Status,
	}
	if len(p.Variants) > 0 {
		if price, err := strconv.ParseFloat(p.Variants[0].Price, 64); err == nil {
			out.Price = price
		}
		out.InventoryQuantity = p.Variants[0].InventoryQuantity
	}
	if p.Image != nil {
		out.ImageURL = p.Image.Src
	}
	return out
}

// nextPageURL extracts the rel="next" target from a Link header, e.g.
// <https://shop/admin/api/2023-10/products.json?page_info=abc>; rel="next"
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
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

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
