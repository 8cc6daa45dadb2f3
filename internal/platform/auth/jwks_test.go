package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestJWKSCache_FetchAndCache(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{rsaJWK(key, "k1"), {Kty: "EC", Kid: "ec"}}})
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, 10*time.Minute)
	got, err := cache.GetKey(context.Background(), "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.N.Cmp(key.PublicKey.N) != 0 || got.E != key.PublicKey.E {
		t.Error("fetched key does not match")
	}
	if _, err := cache.GetKey(context.Background(), "k1"); err != nil {
		t.Fatalf("cache hit failed: %v", err)
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}

	if _, err := cache.GetKey(context.Background(), "ec"); err == nil {
		t.Error("non-RSA keys must be ignored")
	}
}

func TestJWKSCache_Rotation(t *testing.T) {
	k1, _ := rsa.GenerateKey(rand.Reader, 2048)
	k2, _ := rsa.GenerateKey(rand.Reader, 2048)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys := []JWKSKey{rsaJWK(k1, "old")}
		if atomic.AddInt32(&calls, 1) > 1 {
			keys = append(keys, rsaJWK(k2, "new"))
		}
		json.NewEncoder(w).Encode(JWKSResponse{Keys: keys})
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, 10*time.Minute)
	if _, err := cache.GetKey(context.Background(), "old"); err != nil {
		t.Fatalf("old key: %v", err)
	}
	got, err := cache.GetKey(context.Background(), "new")
	if err != nil {
		t.Fatalf("new key after rotation: %v", err)
	}
	if got.N.Cmp(k2.PublicKey.N) != 0 {
		t.Error("rotated key modulus does not match")
	}
}

func TestJWKSCache_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewJWKSCache(srv.URL, time.Minute).GetKey(context.Background(), "k"); err == nil {
		t.Error("expected error for failing JWKS endpoint")
	}
}

func TestDiscoverJWKSURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/realms/clinic/.well-known/openid-configuration":
			json.NewEncoder(w).Encode(map[string]string{"jwks_uri": "https://idp/keys"})
		case "/empty/.well-known/openid-configuration":
			json.NewEncoder(w).Encode(map[string]string{"issuer": "x"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	u, err := DiscoverJWKSURL(context.Background(), srv.URL+"/realms/clinic/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != "https://idp/keys" {
		t.Errorf("unexpected jwks uri %s", u)
	}

	if _, err := DiscoverJWKSURL(context.Background(), srv.URL+"/empty"); err == nil {
		t.Error("expected error for missing jwks_uri")
	}
	if _, err := DiscoverJWKSURL(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
}
