package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parcelhub/internal/model"
)

func senditTestConfig(baseURL string) Config {
	return Config{
		TenantID: "t1",
		Slug:     "sendit",
		BaseURL:  baseURL,
		Creds:    Credentials{"access_token": "tok-1"},
		Timeout:  time.Second,
	}
}

func TestSenditCreateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload["reference"] != "ORD-20260828-0001" {
			t.Errorf("reference = %v", payload["reference"])
		}
		w.Write([]byte(`{"success":true,"data":{"code":"SD-77","status":"pending"}}`))
	}))
	defer srv.Close()

	a := NewSendit(senditTestConfig(srv.URL), srv.Client())
	res := a.CreateParcel(context.Background(), testOrder())
	if res.Outcome != OutcomeAccepted || res.TrackingNumber != "SD-77" {
		t.Fatalf("outcome=%s tracking=%q err=%v", res.Outcome, res.TrackingNumber, res.Err)
	}
}

func TestSenditCreateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"district not served"}`))
	}))
	defer srv.Close()

	a := NewSendit(senditTestConfig(srv.URL), srv.Client())
	res := a.CreateParcel(context.Background(), testOrder())
	if res.Outcome != OutcomeRejected || res.Message != "district not served" {
		t.Fatalf("outcome=%s message=%q", res.Outcome, res.Message)
	}
}

func TestSenditCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deliveries/SD-77" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"data":{"code":"SD-77","status":"Out_For_Delivery"}}`))
	}))
	defer srv.Close()

	a := NewSendit(senditTestConfig(srv.URL), srv.Client())
	res := a.CheckStatus(context.Background(), "SD-77")
	if !res.OK || !res.Mapped || res.Status != model.StatusShipped {
		t.Fatalf("ok=%v mapped=%v status=%s err=%v", res.OK, res.Mapped, res.Status, res.Err)
	}
}
