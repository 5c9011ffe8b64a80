package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ratefeed/internal/domain"
)

// APISource fetches rate directions from a plain JSON endpoint. Sources vary
// wildly in field naming, so every logical field is resolved through an
// ordered alias list instead of branching per provider.
type APISource struct {
	http      *http.Client
	id        string
	name      string
	url       string
	enabled   bool
	userAgent string
}

func NewAPISource(httpClient *http.Client, id, name, url string, enabled bool, userAgent string) *APISource {
	return &APISource{
		http:      httpClient,
		id:        id,
		name:      name,
		url:       url,
		enabled:   enabled,
		userAgent: userAgent,
	}
}

func (s *APISource) ID() string    { return s.id }
func (s *APISource) Name() string  { return s.name }
func (s *APISource) Enabled() bool { return s.enabled }

// Fetch retrieves and decodes the source's payload. A payload that decodes
// but contains no rate items is an error so callers can retry or degrade.
func (s *APISource) Fetch(ctx context.Context) ([]domain.RawRate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for source %q: %w", s.id, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request for source %q: %w", s.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d for source %q: %s", resp.StatusCode, s.id, resp.Status)
	}

	var payload any
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response for source %q: %w", s.id, err)
	}

	rates := s.parsePayload(payload)
	if len(rates) == 0 {
		return nil, fmt.Errorf("source %q: %w", s.id, domain.ErrEmptyPayload)
	}
	return rates, nil
}

// containerKeys are the payload keys tried, in order, when the response is an
// object wrapping the rate array.
var containerKeys = []string{"rates", "data", "items", "directions", "exchanges", "result"}

// Ordered alias lists per logical field. First present key wins.
var (
	fromAliases    = []string{"from", "from_currency", "give", "send", "source", "currency_from"}
	toAliases      = []string{"to", "to_currency", "get", "receive", "target", "currency_to"}
	inAliases      = []string{"in", "in_amount"}
	outAliases     = []string{"out", "out_amount", "rate", "exchange_rate"}
	reserveAliases = []string{"reserve", "amount", "available"}
	minAliases     = []string{"min", "min_amount", "minamount"}
	maxAliases     = []string{"max", "max_amount", "maxamount"}
	paramAliases   = []string{"param", "params", "flags"}
)

func (s *APISource) parsePayload(payload any) []domain.RawRate {
	items := extractItems(payload)
	fetchedAt := time.Now()

	rates := make([]domain.RawRate, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		from := pick(item, fromAliases)
		to := pick(item, toAliases)
		if from == "" || to == "" {
			continue
		}

		in := pick(item, inAliases)
		if in == "" {
			in = "1"
		}

		rates = append(rates, domain.RawRate{
			SourceID:   s.id,
			SourceName: s.name,
			FromTicker: from,
			ToTicker:   to,
			InAmount:   in,
			OutAmount:  pick(item, outAliases),
			Reserve:    pick(item, reserveAliases),
			MinAmount:  pick(item, minAliases),
			MaxAmount:  pick(item, maxAliases),
			Param:      pick(item, paramAliases),
			FetchedAt:  fetchedAt,
			SourceURL:  s.url,
		})
	}
	return rates
}

func extractItems(payload any) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range containerKeys {
			if items, ok := v[key].([]any); ok {
				return items
			}
		}
	}
	return nil
}

// pick returns the first alias present in the item, rendered as a string.
func pick(item map[string]any, aliases []string) string {
	for _, key := range aliases {
		v, ok := item[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		default:
			return fmt.Sprintf("%v", t)
		}
	}
	return ""
}
