package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"testing"
)

const (
	// Addresses used by the live server tests. Any well-formed address works
	// because orders are only encoded and stored until verified.
	TestSellerAddress   = "0x00000000000000000000000000000000000000aa"
	TestBuyerAddress    = "0x00000000000000000000000000000000000000bb"
	TestContractAddress = "0x00000000000000000000000000000000000000cc"
)

// BaseURL returns the address of a running market server, skipping the test if unset
func BaseURL(t *testing.T) string {
	t.Helper()

	baseURL := os.Getenv("MARKET_BASE_URL")
	if baseURL == "" {
		t.Skip("MARKET_BASE_URL not set, skipping live server test")
	}
	return baseURL
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()

	reqBody, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		t.Fatalf("Failed to make POST request: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}
