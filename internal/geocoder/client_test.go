package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Resolve(t *testing.T) {
	var gotPath, gotPlace string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPlace = r.URL.Query().Get("place")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"lat":37.7749,"lng":-122.4194}}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL)
	point, err := client.Resolve(context.Background(), "San Francisco, CA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/geocode" {
		t.Fatalf("expected /geocode path, got %s", gotPath)
	}
	if gotPlace != "San Francisco, CA" {
		t.Fatalf("expected place passed through, got %q", gotPlace)
	}
	if point.Lat != 37.7749 || point.Lng != -122.4194 {
		t.Fatalf("unexpected point: %+v", point)
	}
}

func TestClient_Resolve_EmptyPlace(t *testing.T) {
	client := NewClient(http.DefaultClient, "http://geocoder")
	if _, err := client.Resolve(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty place")
	}
}

func TestClient_Resolve_ErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"no results"}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL)
	if _, err := client.Resolve(context.Background(), "nowhere"); err == nil {
		t.Fatalf("expected error from payload")
	}
}

func TestClient_Resolve_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL)
	if _, err := client.Resolve(context.Background(), "oakland"); err == nil {
		t.Fatalf("expected error for 5xx response")
	}
}

func TestClient_Resolve_InvalidCoordinates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"lat":200,"lng":0}}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL)
	if _, err := client.Resolve(context.Background(), "oakland"); err == nil {
		t.Fatalf("expected error for out-of-range point")
	}
}
