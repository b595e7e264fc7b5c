package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"certassist-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func setup(t testing.TB, handler http.Handler) *Service {
	cleanup := telemetry.SetupForTesting(t, "test:services/payments")
	t.Cleanup(cleanup)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseUrl = server.URL
	cfg.KeyID = "rzp_test_key"
	cfg.KeySecret = "secret"
	return NewService(cfg)
}

func TestCreateLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/payment_links", func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "rzp_test_key", user)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, float64(1000), body["amount"])
		require.Equal(t, "INR", body["currency"])
		require.Equal(t, "TN-2120251031226", body["reference_id"])

		json.NewEncoder(w).Encode(map[string]any{
			"id":        "plink_123",
			"short_url": "https://rzp.io/i/abc",
			"status":    "created",
		})
	})

	s := setup(t, mux)

	link, err := s.CreateLink(context.Background(), "TN-2120251031226")
	require.NoError(t, err)
	require.Equal(t, "plink_123", link.ID)
	require.Equal(t, "https://rzp.io/i/abc", link.ShortUrl)
	require.Equal(t, "TN-2120251031226", link.Reference)
}

func TestIsPaid(t *testing.T) {
	statuses := map[string]string{
		"plink_paid":    "paid",
		"plink_created": "created",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/payment_links/{id}", func(w http.ResponseWriter, r *http.Request) {
		status, ok := statuses[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     r.PathValue("id"),
			"status": status,
		})
	})

	s := setup(t, mux)
	ctx := context.Background()

	paid, err := s.IsPaid(ctx, "plink_paid")
	require.NoError(t, err)
	require.True(t, paid)

	paid, err = s.IsPaid(ctx, "plink_created")
	require.NoError(t, err)
	require.False(t, paid)

	_, err = s.IsPaid(ctx, "plink_missing")
	require.ErrorIs(t, err, ErrLinkNotFound)
}
