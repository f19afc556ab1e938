package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMarketPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices/0xc1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"yes_price":"0.62","no_price":"0.38","best_bid":"0.61"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	mp, err := c.GetMarketPrice(context.Background(), "0xc1")
	require.NoError(t, err)
	assert.Equal(t, "0.62", mp.YesPrice.String())
	assert.Equal(t, "0.38", mp.NoPrice.String())
	assert.Equal(t, "0.61", mp.BestBid.String())

	assert.Equal(t, "0.62", mp.ForOutcome("YES").String())
	assert.Equal(t, "0.38", mp.ForOutcome("no").String())
}

func TestGetMarketPriceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetMarketPrice(context.Background(), "0xc1")
	assert.Error(t, err)
}

func TestGetPriceRetriesOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"yes_price":"0.50","no_price":"0.50","best_bid":"0.49"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	price, err := c.GetPrice(context.Background(), "0xc1", "YES")
	require.NoError(t, err)
	assert.Equal(t, "0.5", price.String())
	assert.Equal(t, 2, calls)
}
