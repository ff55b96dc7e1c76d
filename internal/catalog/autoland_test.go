package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestFetchVehiclesProjectsFixedColumns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if body["precio_min"] != float64(0) || body["precio_max"] != float64(25000000000) {
			t.Errorf("price window = %v", body)
		}
		fmt.Fprint(w, `{"autos":[
		  {"vehicle_id": 7, "title": "Mazda 3", "make": "Mazda", "year": 2020,
		   "price": 65000000, "city": "Bogota", "extra_field": "dropped"},
		  {"vehicle_id": 8, "title": "Kia Rio"}
		]}`)
	}))
	defer srv.Close()

	c := NewAutolandClient(time.Second)
	c.Endpoint = srv.URL

	records, err := c.FetchVehicles(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if !reflect.DeepEqual(records[0].Names(), autolandFields) {
		t.Fatalf("field order = %v", records[0].Names())
	}
	if records[0].Has("extra_field") {
		t.Fatalf("unprojected feed fields must be dropped")
	}
	if v, _ := records[0].Get("year"); v != int64(2020) {
		t.Fatalf("year = %v (%T)", v, v)
	}
	// Fields the feed omits are still present, as nulls.
	if v, ok := records[1].Get("city"); !ok || v != nil {
		t.Fatalf("missing feed field: v=%v ok=%v", v, ok)
	}
}

func TestFetchVehiclesSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAutolandClient(time.Second)
	c.Endpoint = srv.URL

	if _, err := c.FetchVehicles(context.Background()); err == nil {
		t.Fatalf("expected an error for non-200 response")
	}
}
