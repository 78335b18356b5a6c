package lps

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
)

func TestSendAuthorizationResponseRoutesByLpsID(t *testing.T) {
	var path string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	transferAmount, _ := models.NewMoney("107", "USD")
	fees, _ := models.NewMoney("7", "USD")
	response := models.LegacyAuthorizationResponse{
		LpsKey:         "lps1-001-abc",
		TransferAmount: transferAmount,
		Fees:           fees,
	}
	if err := client.SendAuthorizationResponse(context.Background(), "lps1", response); err != nil {
		t.Fatalf("SendAuthorizationResponse: %v", err)
	}

	if path != "/lps1/authorizationResponses" {
		t.Fatalf("path = %s", path)
	}
	var decoded models.LegacyAuthorizationResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if decoded.LpsKey != "lps1-001-abc" || decoded.TransferAmount.String() != "107 USD" {
		t.Fatalf("unexpected body: %+v", decoded)
	}
}

func TestSendFinancialResponseReportsFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	response := models.LegacyFinancialResponse{LpsKey: "lps1-001-abc"}
	if err := client.SendFinancialResponse(context.Background(), "lps1", response); err == nil {
		t.Fatal("expected an error for a 503 response")
	}
}

func TestPostRequiresLpsID(t *testing.T) {
	client, err := NewClient("http://relay", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.SendFinancialResponse(context.Background(), "", models.LegacyFinancialResponse{}); err == nil {
		t.Fatal("expected an error for a missing lps id")
	}
}
