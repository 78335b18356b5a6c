package hub

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

type recordedRequest struct {
	method      string
	path        string
	source      string
	destination string
	body        []byte
}

func newTestServer(t *testing.T, status int) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			source:      r.Header.Get("fspiop-source"),
			destination: r.Header.Get("fspiop-destination"),
			body:        body,
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestPutTransfersSendsFulfilmentToDestination(t *testing.T) {
	server, requests := newTestServer(t, http.StatusOK)

	client, err := NewClient(server.URL, "adaptor", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	response := models.TransfersIDPutResponse{
		Fulfilment:         "fulfilment-abc",
		TransferState:      "COMMITTED",
		CompletedTimestamp: "2026-08-28T10:00:00Z",
	}
	if err := client.PutTransfers(context.Background(), "transfer-1", response, "mojawallet"); err != nil {
		t.Fatalf("PutTransfers: %v", err)
	}

	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	request := (*requests)[0]
	if request.method != http.MethodPut || request.path != "/transfers/transfer-1" {
		t.Fatalf("request = %s %s", request.method, request.path)
	}
	if request.source != "adaptor" || request.destination != "mojawallet" {
		t.Fatalf("routing headers = %q -> %q", request.source, request.destination)
	}

	var decoded models.TransfersIDPutResponse
	if err := json.Unmarshal(request.body, &decoded); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if decoded.Fulfilment != "fulfilment-abc" || decoded.TransferState != "COMMITTED" {
		t.Fatalf("unexpected body: %+v", decoded)
	}
}

func TestPutTransfersErrorWrapsErrorInformation(t *testing.T) {
	server, requests := newTestServer(t, http.StatusOK)

	client, err := NewClient(server.URL, "adaptor", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	info := models.ErrorInformation{ErrorCode: "2001", ErrorDescription: "Failed to process transfer request."}
	if err := client.PutTransfersError(context.Background(), "transfer-1", info, "mojawallet"); err != nil {
		t.Fatalf("PutTransfersError: %v", err)
	}

	request := (*requests)[0]
	if request.path != "/transfers/transfer-1/error" {
		t.Fatalf("path = %s", request.path)
	}

	var decoded struct {
		ErrorInformation models.ErrorInformation `json:"errorInformation"`
	}
	if err := json.Unmarshal(request.body, &decoded); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if decoded.ErrorInformation != info {
		t.Fatalf("unexpected error information: %+v", decoded.ErrorInformation)
	}
}

func TestSendReportsNonSuccessStatus(t *testing.T) {
	server, _ := newTestServer(t, http.StatusBadGateway)

	client, err := NewClient(server.URL, "adaptor", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	err = client.PutQuotes(context.Background(), "quote-1", models.QuotesIDPutResponse{}, "mojawallet")
	if err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}

func TestNewClientValidatesConfiguration(t *testing.T) {
	if _, err := NewClient("", "adaptor", zerolog.Nop()); err == nil {
		t.Fatal("expected an error for missing base URL")
	}
	if _, err := NewClient("http://hub", "", zerolog.Nop()); err == nil {
		t.Fatal("expected an error for missing fsp id")
	}
}
