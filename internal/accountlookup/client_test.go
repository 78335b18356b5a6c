package accountlookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestFspIDFromMSISDN(t *testing.T) {
	var method, path, source, traceID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		source = r.Header.Get("fspiop-source")
		traceID = r.Header.Get("traceid")
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "adaptor", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := client.RequestFspIDFromMSISDN(context.Background(), "txr-1", "0821234567"); err != nil {
		t.Fatalf("RequestFspIDFromMSISDN: %v", err)
	}

	if method != http.MethodGet || path != "/parties/MSISDN/0821234567" {
		t.Fatalf("request = %s %s", method, path)
	}
	if source != "adaptor" {
		t.Fatalf("fspiop-source = %q", source)
	}
	if traceID != "txr-1" {
		t.Fatalf("traceid = %q", traceID)
	}
}

func TestRequestFspIDFromMSISDNRejectsEmptyMSISDN(t *testing.T) {
	client, err := NewClient("http://lookup", "adaptor", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.RequestFspIDFromMSISDN(context.Background(), "txr-1", ""); err == nil {
		t.Fatal("expected an error for an empty msisdn")
	}
}

func TestRequestFspIDFromMSISDNReportsFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "adaptor", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.RequestFspIDFromMSISDN(context.Background(), "txr-1", "0821234567"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
