package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPStoreRoundTrip(t *testing.T) {
	bindings := map[uint64]Binding{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var b Binding
			if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			bindings[b.RequestID] = b
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			for _, b := range bindings {
				if r.URL.Path == "/payment-request-by-id/7" && b.RequestID == 7 {
					_ = json.NewEncoder(w).Encode(b)
					return
				}
			}
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	store := NewHTTPStore(ts.URL)
	ctx := context.Background()

	err := store.Put(ctx, Binding{RequestID: 7, UPIID: "merchant@upi", PayeeName: "Shop"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	stored := bindings[7]
	if stored.ID == "" {
		t.Fatalf("expected generated binding id")
	}
	if stored.CreatedAt.IsZero() {
		t.Fatalf("expected created timestamp")
	}

	got, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.UPIID != "merchant@upi" || got.PayeeName != "Shop" {
		t.Fatalf("unexpected binding %+v", got)
	}
}

func TestHTTPStoreGetSilentFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	store := NewHTTPStore(ts.URL)
	got, err := store.Get(context.Background(), 1)
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) on server error, got %v %v", got, err)
	}

	// A dead backend degrades the same way.
	ts.Close()
	got, err = store.Get(context.Background(), 1)
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) on connection failure, got %v %v", got, err)
	}
}

func TestHTTPStorePutReportsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	store := NewHTTPStore(ts.URL)
	if err := store.Put(context.Background(), Binding{RequestID: 1, UPIID: "a@b"}); err == nil {
		t.Fatalf("expected error on failed write")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.Get(ctx, 5)
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) for unknown id, got %v %v", got, err)
	}

	if err := store.Put(ctx, Binding{RequestID: 5, UPIID: "x@y"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err = store.Get(ctx, 5)
	if err != nil || got == nil || got.UPIID != "x@y" {
		t.Fatalf("unexpected binding %+v err %v", got, err)
	}

	// Re-binding the same request overwrites.
	if err := store.Put(ctx, Binding{RequestID: 5, UPIID: "z@w"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _ = store.Get(ctx, 5)
	if got.UPIID != "z@w" {
		t.Fatalf("expected overwrite, got %+v", got)
	}
}
