package cowin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, UserAgent: "cowinbot-test"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestClientRequiresUserAgent(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing user agent")
	}
}

func TestClientSendsUserAgent(t *testing.T) {
	var gotUA string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"states":[]}`))
	})

	if _, err := client.States(context.Background()); err != nil {
		t.Fatalf("States: %v", err)
	}
	if gotUA != "cowinbot-test" {
		t.Fatalf("User-Agent = %q, want %q", gotUA, "cowinbot-test")
	}
}

func TestClientStates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/location/states" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"states":[{"state_id":4,"state_name":"Assam"},{"state_id":9,"state_name":"Delhi"}]}`))
	})

	states, err := client.States(context.Background())
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("len(states) = %d, want 2", len(states))
	}
	if states[1].StateID != 9 || states[1].StateName != "Delhi" {
		t.Fatalf("states[1] = %+v", states[1])
	}
}

func TestClientDistricts(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/location/districts/9" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"districts":[{"district_id":145,"district_name":"East Delhi"}]}`))
	})

	districts, err := client.Districts(context.Background(), 9)
	if err != nil {
		t.Fatalf("Districts: %v", err)
	}
	if len(districts) != 1 || districts[0].DistrictName != "East Delhi" {
		t.Fatalf("districts = %+v", districts)
	}
}

func TestClientCentersByDistrict(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("district_id") != "145" {
			t.Errorf("district_id = %q", q.Get("district_id"))
		}
		if q.Get("date") != "14/05/2021" {
			t.Errorf("date = %q", q.Get("date"))
		}
		_, _ = w.Write([]byte(`{"centers":[{"name":"GTB Hospital","pincode":110095,"fee_type":"Free","sessions":[{"date":"14/05/2021","vaccine":"COVISHIELD","min_age_limit":45,"available_capacity":12}]}]}`))
	})

	centers, err := client.CentersByDistrict(context.Background(), 145, "14/05/2021")
	if err != nil {
		t.Fatalf("CentersByDistrict: %v", err)
	}
	if len(centers) != 1 {
		t.Fatalf("len(centers) = %d, want 1", len(centers))
	}
	c := centers[0]
	if c.Pincode != "110095" {
		t.Errorf("pincode = %q, want 110095 (numeric JSON decoded to string)", c.Pincode)
	}
	if len(c.Sessions) != 1 || c.Sessions[0].AvailableCapacity != 12 {
		t.Errorf("sessions = %+v", c.Sessions)
	}
}

func TestClientCentersByPincode(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pincode") != "110095" {
			t.Errorf("pincode = %q", r.URL.Query().Get("pincode"))
		}
		_, _ = w.Write([]byte(`{"centers":[]}`))
	})

	centers, err := client.CentersByPincode(context.Background(), "110095", "14/05/2021")
	if err != nil {
		t.Fatalf("CentersByPincode: %v", err)
	}
	if len(centers) != 0 {
		t.Fatalf("centers = %+v, want empty", centers)
	}
}

func TestClientErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.States(context.Background())
	if err == nil {
		t.Fatal("expected error on 403")
	}
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if perr.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", perr.StatusCode)
	}
}

func TestClientTransportError(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.States(context.Background())
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if perr.StatusCode != 0 {
		t.Fatalf("status = %d, want 0 for transport error", perr.StatusCode)
	}
}

func TestPincodeUnmarshalString(t *testing.T) {
	var p Pincode
	if err := p.UnmarshalJSON([]byte(`"560001"`)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if p != "560001" {
		t.Fatalf("p = %q", p)
	}
}
