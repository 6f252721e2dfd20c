package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const kanoFeatures = `{"features":[
	{"place_name":"Kano Mall, Zoo Road, Kano","center":[8.5167,11.9667]},
	{"place_name":"Kano City Gate","center":[8.51,11.97]}
]}`

func TestSearchParsesFeatures(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(kanoFeatures))
	}))
	defer ts.Close()

	c := NewMapboxClient(ts.URL, "tok")
	c.Country = "NG"
	c.BiasLat, c.BiasLng = 11.9667, 8.5167

	sugg, err := c.Search(context.Background(), "kano mall")
	if err != nil {
		t.Fatal(err)
	}
	if len(sugg) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(sugg))
	}
	// mapbox centers are lng,lat pairs
	if sugg[0].Lat != 11.9667 || sugg[0].Lng != 8.5167 {
		t.Fatalf("coordinate order wrong: %+v", sugg[0])
	}
	if sugg[0].Label != "Kano Mall, Zoo Road, Kano" {
		t.Fatalf("label = %q", sugg[0].Label)
	}
	for _, want := range []string{"access_token=tok", "country=NG", "proximity=8.5167%2C11.9667", "limit=5"} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestSearchShortQueryReturnsNothing(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ts.Close()

	c := NewMapboxClient(ts.URL, "tok")
	sugg, err := c.Search(context.Background(), "ka")
	if err != nil || sugg != nil {
		t.Fatalf("short query: sugg=%v err=%v", sugg, err)
	}
	if calls != 0 {
		t.Fatal("short query reached upstream")
	}
}

func TestSearchUsesCache(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(kanoFeatures))
	}))
	defer ts.Close()

	c := NewMapboxClient(ts.URL, "tok")
	c.Cache = NewMemCache(time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := c.Search(context.Background(), "kano mall"); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls)
	}
}

func TestSearchUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewMapboxClient(ts.URL, "bad-tok")
	if _, err := c.Search(context.Background(), "kano mall"); err == nil {
		t.Fatal("expected error from upstream 401")
	}
}

func TestDisabledClient(t *testing.T) {
	var d Disabled
	if d.Enabled() {
		t.Fatal("Disabled.Enabled() = true")
	}
	sugg, err := d.Search(context.Background(), "anything at all")
	if err != nil || sugg != nil {
		t.Fatalf("disabled search: sugg=%v err=%v", sugg, err)
	}
}

func TestMemCacheExpiry(t *testing.T) {
	c := NewMemCache(time.Millisecond)
	c.Set(context.Background(), "q", []Suggestion{{Label: "x"}})
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(context.Background(), "q"); ok {
		t.Fatal("expired entry served")
	}
}
