package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// ShoppingSource queries a product-search API (SerpAPI-compatible
// google_shopping engine) for live listings.
type ShoppingSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// NewShoppingSource builds the source from SEARCH_API_URL and
// SEARCH_API_KEY. A missing key is tolerated at construction; requests
// will fail and be recorded as source errors.
func NewShoppingSource() *ShoppingSource {
	baseURL := os.Getenv("SEARCH_API_URL")
	if baseURL == "" {
		baseURL = "https://serpapi.com"
	}

	breakerSettings := gobreaker.Settings{
		Name:        "shopping-search-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			fmt.Printf(`{"level":"warn","message":"Circuit breaker state change","breaker":"%s","from":"%s","to":"%s"}`+"\n",
				name, from.String(), to.String())
		},
	}

	return &ShoppingSource{
		baseURL: baseURL,
		apiKey:  os.Getenv("SEARCH_API_KEY"),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		tracer:  otel.Tracer("shopping-source"),
		breaker: gobreaker.NewCircuitBreaker(breakerSettings),
	}
}

// SetBaseURL overrides the endpoint, used by tests.
func (s *ShoppingSource) SetBaseURL(u string) {
	s.baseURL = u
}

func (s *ShoppingSource) Name() string {
	return "shopping_search"
}

// Search issues one query built from the request category and required
// specs and maps the shopping results into candidate items.
func (s *ShoppingSource) Search(ctx context.Context, req *models.ProcurementRequest) ([]models.CandidateItem, error) {
	ctx, span := s.tracer.Start(ctx, "shopping.search")
	defer span.End()

	query := req.Constraints.Category
	if len(req.Constraints.RequiredSpecs) > 0 {
		query = query + " " + strings.Join(req.Constraints.RequiredSpecs, " ")
	}
	span.SetAttributes(
		attribute.String("request.id", req.ID),
		attribute.String("search.query", query),
	)

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx, query)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "shopping search failed")
		return nil, &models.SourceFetchError{Source: s.Name(), Err: err}
	}

	items := result.([]models.CandidateItem)
	span.SetAttributes(attribute.Int("search.results", len(items)))
	return items, nil
}

type shoppingResponse struct {
	ShoppingResults []struct {
		ProductID      string  `json:"product_id"`
		Title          string  `json:"title"`
		Source         string  `json:"source"`
		Price          string  `json:"price"`
		ExtractedPrice float64 `json:"extracted_price"`
		Snippet        string  `json:"snippet"`
	} `json:"shopping_results"`
	Error string `json:"error"`
}

func (s *ShoppingSource) fetch(ctx context.Context, query string) ([]models.CandidateItem, error) {
	params := url.Values{}
	params.Set("engine", "google_shopping")
	params.Set("q", query)
	params.Set("api_key", s.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed shoppingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("search API error: %s", parsed.Error)
	}

	now := time.Now().UTC()
	items := make([]models.CandidateItem, 0, len(parsed.ShoppingResults))
	for i, r := range parsed.ShoppingResults {
		price := r.ExtractedPrice
		if price == 0 {
			price = parsePrice(r.Price)
		}
		nativeID := r.ProductID
		if nativeID == "" {
			// Some engines omit product ids; fall back to a positional id
			// so dedup still has a stable key within one response.
			nativeID = fmt.Sprintf("pos-%d", i)
		}
		items = append(items, models.CandidateItem{
			Source:      s.Name(),
			NativeID:    nativeID,
			Title:       r.Title,
			Price:       price,
			Currency:    "USD",
			Vendor:      r.Source,
			RawSpecText: r.Snippet,
			RetrievedAt: now,
		})
	}
	return items, nil
}

// parsePrice strips currency symbols and separators from a display
// price like "$1,299.00".
func parsePrice(display string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, display)
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}
