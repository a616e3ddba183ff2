package nadac

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rxcost/core/cache"
	"rxcost/core/fetch"
	"rxcost/core/provider"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.QueryURL = srv.URL
	cfg.TTL = time.Minute
	return NewClient(cfg, fetch.NewClient(cache.NewStore()))
}

func TestFetchBuildsExpectedQuery(t *testing.T) {
	var got datastoreQuery
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad query body: %v", err)
		}
		w.Write([]byte(`{"results":[],"count":0}`))
	}))

	_, _, err := client.Fetch(context.Background(), provider.Request{Drug: "Metformin", Qty: 30, Limit: 25})
	if err != nil {
		t.Fatal(err)
	}

	if got.Limit != 25 {
		t.Errorf("limit = %d, want 25", got.Limit)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].GroupOperator != "or" {
		t.Fatalf("conditions = %+v", got.Conditions)
	}
	conds := got.Conditions[0].Conditions
	if len(conds) != 2 || conds[0].Value != "metformin" || conds[1].Property != "generic_name" {
		t.Errorf("conditions = %+v", conds)
	}
	if len(got.Sorts) != 1 || got.Sorts[0].Property != "effective_date" || got.Sorts[0].Order != "desc" {
		t.Errorf("sorts = %+v", got.Sorts)
	}
}

func TestFetchCapsPageSize(t *testing.T) {
	var got datastoreQuery
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"results":[],"count":0}`))
	}))

	if _, _, err := client.Fetch(context.Background(), provider.Request{Drug: "metformin", Qty: 30, Limit: 500}); err != nil {
		t.Fatal(err)
	}
	if got.Limit != maxPageSize {
		t.Errorf("limit = %d, want cap %d", got.Limit, maxPageSize)
	}
}

func TestFetchMapsRecords(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"ndc_description":"METFORMIN HCL 500 MG TABLET","ndc":"00093104801","nadac_per_unit":"0.02587","effective_date":"2024-02-21","pricing_unit":"EA"},
			{"ndc_description":"METFORMIN HCL 1000 MG TABLET","ndc":"00093104901","nadac_per_unit":"not-a-price","effective_date":"2024-02-21","pricing_unit":"EA"}
		],"count":2}`))
	}))

	rows, sourceURL, err := client.Fetch(context.Background(), provider.Request{Drug: "metformin", Qty: 60, Limit: 25})
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (unparsable price skipped)", len(rows))
	}
	row := rows[0]
	if row.Qty != 60 {
		t.Errorf("qty = %d, want 60", row.Qty)
	}
	if row.UnitPrice != 0.0259 {
		t.Errorf("unit = %v, want 0.0259", row.UnitPrice)
	}
	if row.TotalPrice != 1.5522 {
		t.Errorf("total = %v, want 1.5522", row.TotalPrice)
	}
	if row.Dataset != "nadac" || row.NDC != "00093104801" {
		t.Errorf("row = %+v", row)
	}
	if sourceURL == "" {
		t.Error("missing source URL")
	}
}

func TestFetchCachesByTermAndLimit(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"results":[],"count":0}`))
	}))

	req := provider.Request{Drug: "metformin", Qty: 30, Limit: 25}
	client.Fetch(context.Background(), req)
	client.Fetch(context.Background(), req)
	if calls != 1 {
		t.Errorf("upstream called %d times, want 1", calls)
	}

	req.Limit = 10
	client.Fetch(context.Background(), req)
	if calls != 2 {
		t.Errorf("different limit reused cache: calls = %d, want 2", calls)
	}
}
