package shadow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSupplierFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"broker_url": "wss://broker.example/mqtt?sig=abc",
			"client_id": "client-7",
			"device_id": "dev-1"
		}`))
	}))
	defer srv.Close()

	creds, err := NewHTTPSupplier(srv.URL, "secret-token").Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if creds.BrokerURL != "wss://broker.example/mqtt?sig=abc" {
		t.Errorf("broker URL = %q", creds.BrokerURL)
	}
	if creds.ClientID != "client-7" {
		t.Errorf("client ID = %q", creds.ClientID)
	}
	if creds.DeviceID != "dev-1" {
		t.Errorf("device ID = %q", creds.DeviceID)
	}
	if creds.IssuedAt.IsZero() {
		t.Error("IssuedAt not stamped")
	}
}

func TestHTTPSupplierGeneratesClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"broker_url":"wss://b.example/mqtt","device_id":"dev-1"}`))
	}))
	defer srv.Close()

	creds, err := NewHTTPSupplier(srv.URL, "").Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasPrefix(creds.ClientID, "aircloud-") {
		t.Errorf("generated client ID = %q, want aircloud- prefix", creds.ClientID)
	}
}

func TestHTTPSupplierErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			wantErr: "status 502",
		},
		{
			name:    "missing broker url",
			status:  http.StatusOK,
			body:    `{"device_id":"dev-1"}`,
			wantErr: "broker_url",
		},
		{
			name:    "missing device id",
			status:  http.StatusOK,
			body:    `{"broker_url":"wss://b.example/mqtt"}`,
			wantErr: "device_id",
		},
		{
			name:    "not json",
			status:  http.StatusOK,
			body:    `<html>login required</html>`,
			wantErr: "decoding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPSupplier(srv.URL, "").Fetch(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
