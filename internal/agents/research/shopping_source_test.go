package research

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

func TestShoppingSearch_ParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "google_shopping", r.URL.Query().Get("engine"))
		assert.Equal(t, "keyboard mechanical usb-c", r.URL.Query().Get("q"))

		fmt.Fprint(w, `{"shopping_results":[
			{"product_id":"p1","title":"Mechanical Keyboard","source":"Dell","extracted_price":129.99,"snippet":"mechanical usb-c"},
			{"product_id":"p2","title":"Office Keyboard","source":"Staples","price":"$49.00"}
		]}`)
	}))
	defer server.Close()

	src := NewShoppingSource()
	src.SetBaseURL(server.URL)

	req := testRequest()
	req.Constraints.RequiredSpecs = []string{"mechanical", "usb-c"}

	items, err := src.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "shopping_search", items[0].Source)
	assert.Equal(t, "p1", items[0].NativeID)
	assert.Equal(t, "Mechanical Keyboard", items[0].Title)
	assert.Equal(t, 129.99, items[0].Price)
	assert.Equal(t, "Dell", items[0].Vendor)
	assert.Equal(t, "mechanical usb-c", items[0].RawSpecText)

	assert.Equal(t, 49.0, items[1].Price, "display price used when extracted_price is absent")
}

func TestShoppingSearch_NativeIDFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"shopping_results":[{"title":"Keyboard","source":"CDW","extracted_price":80}]}`)
	}))
	defer server.Close()

	src := NewShoppingSource()
	src.SetBaseURL(server.URL)

	items, err := src.Search(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "pos-0", items[0].NativeID)
}

func TestShoppingSearch_Failures(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer server.Close()

		src := NewShoppingSource()
		src.SetBaseURL(server.URL)

		_, err := src.Search(context.Background(), testRequest())
		var fetchErr *models.SourceFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, "shopping_search", fetchErr.Source)
	})

	t.Run("api error field", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error":"invalid api key"}`)
		}))
		defer server.Close()

		src := NewShoppingSource()
		src.SetBaseURL(server.URL)

		_, err := src.Search(context.Background(), testRequest())
		var fetchErr *models.SourceFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Contains(t, err.Error(), "invalid api key")
	})
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		display string
		want    float64
	}{
		{"$1,299.00", 1299.0},
		{"$49.99", 49.99},
		{"129", 129.0},
		{"", 0},
		{"call for price", 0},
	}
	for _, tc := range tests {
		t.Run(tc.display, func(t *testing.T) {
			assert.Equal(t, tc.want, parsePrice(tc.display))
		})
	}
}
