package pool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStaticPool(t *testing.T) {
	c := New("", []string{"btc", "ETHUSDT", "sol", "BTC"}, time.Minute)

	symbols, err := c.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if len(symbols) != len(want) {
		t.Fatalf("symbols = %v, want %v", symbols, want)
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Errorf("symbols[%d] = %s, want %s", i, symbols[i], want[i])
		}
	}
	if !c.Contains("btcusdt") || c.Contains("DOGEUSDT") {
		t.Error("Contains lookup wrong")
	}
}

func TestRemotePoolObjectShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols": ["BTCUSDT", "XRP"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"ETHUSDT"}, time.Minute)
	symbols, err := c.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(symbols) != 2 || symbols[1] != "XRPUSDT" {
		t.Errorf("symbols = %v", symbols)
	}
}

func TestRemotePoolArrayShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["SOLUSDT", "ADAUSDT"]`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, time.Minute)
	symbols, err := c.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "SOLUSDT" {
		t.Errorf("symbols = %v", symbols)
	}
}

func TestRemotePoolFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"BTCUSDT"}, time.Minute)
	symbols, err := c.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols should not error on fallback: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "BTCUSDT" {
		t.Errorf("symbols = %v, want static fallback", symbols)
	}
}

func TestRemotePoolCaches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`["BTCUSDT"]`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, time.Hour)
	ctx := context.Background()
	c.Symbols(ctx)
	c.Symbols(ctx)
	c.Symbols(ctx)

	if calls != 1 {
		t.Errorf("remote calls = %d, want 1 (cached)", calls)
	}
}
