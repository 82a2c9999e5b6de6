package winmax4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/controlink-dev/winmax4-sync/models"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	t.Setenv("WINMAX4_RATE_LIMIT_PER_MIN", "6000000")

	client, err := NewClient(&models.License{
		LicenseId:    "test-license",
		CompanyCode:  "TESTCO",
		Url:          serverURL,
		Username:     "operator",
		Password:     "secret",
		TerminalCode: "T1",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestAuthenticate_SendsCredentialsAndStoresToken(t *testing.T) {
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Account/GenerateToken" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		fmt.Fprint(w, `{"Data":{"AccessToken":{"Value":"tok-123"}}}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if client.token != "tok-123" {
		t.Errorf("token = %q, want tok-123", client.token)
	}
	if gotBody["Company"] != "TESTCO" || gotBody["UserLogin"] != "operator" ||
		gotBody["Password"] != "secret" || gotBody["TerminalCode"] != "T1" {
		t.Errorf("credentials payload = %v", gotBody)
	}
}

func TestAuthenticate_MissingTokenIsApiError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Data":{}}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	err := client.Authenticate(context.Background())
	var apiErr *ApiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want ApiError, got %v", err)
	}
}

func TestGetPages_FollowsTotalPagesInOrder(t *testing.T) {
	pageBodies := map[string]string{
		"":  `{"Data":{"Filter":{"TotalPages":3,"PageNumber":1},"Currencies":[{"ID":1,"Code":"EUR"},{"ID":2,"Code":"USD"}]}}`,
		"2": `{"Data":{"Filter":{"TotalPages":3,"PageNumber":2},"Currencies":[{"ID":3,"Code":"GBP"}]}}`,
		"3": `{"Data":{"Filter":{"TotalPages":3,"PageNumber":3},"Currencies":[{"ID":4,"Code":"CHF"}]}}`,
	}
	var requestedPages []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		page := r.URL.Query().Get("PageNumber")
		requestedPages = append(requestedPages, page)
		fmt.Fprint(w, pageBodies[page])
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	client.token = "tok"

	pages, err := client.GetPages(context.Background(), "/Files/Currencies", url.Values{})
	if err != nil {
		t.Fatalf("GetPages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	if len(requestedPages) != 3 || requestedPages[1] != "2" || requestedPages[2] != "3" {
		t.Errorf("requested pages = %v", requestedPages)
	}

	// Effective remote set is the ordered concatenation of all pages.
	var codes []string
	for _, page := range pages {
		var parsed currencyPage
		if err := json.Unmarshal(page, &parsed); err != nil {
			t.Fatalf("decode page: %v", err)
		}
		for _, c := range parsed.Data.Currencies {
			codes = append(codes, c.Code)
		}
	}
	want := []string{"EUR", "USD", "GBP", "CHF"}
	if len(codes) != len(want) {
		t.Fatalf("codes = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes[%d] = %q, want %q", i, codes[i], want[i])
		}
	}
}

func TestGetPages_NotFoundIsEmptyNotError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	pages, err := client.GetPages(context.Background(), "/Files/Taxes", url.Values{})
	if err != nil {
		t.Fatalf("GetPages: %v", err)
	}
	if pages != nil {
		t.Errorf("pages = %v, want nil", pages)
	}
}

func TestGetPages_NullBodyIsEmptyNotError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "null")
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	pages, err := client.GetPages(context.Background(), "/Files/Taxes", url.Values{})
	if err != nil {
		t.Fatalf("GetPages: %v", err)
	}
	if pages != nil {
		t.Errorf("pages = %v, want nil", pages)
	}
}

func TestGetPages_StructuredErrorBecomesApiError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"Results":[{"Code":"ERR_BACKEND","Message":"backend unavailable"}]}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	_, err := client.GetPages(context.Background(), "/Files/Warehouses", url.Values{})
	var apiErr *ApiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want ApiError, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Code != "ERR_BACKEND" {
		t.Errorf("ApiError = %+v", apiErr)
	}
}

func TestGetPages_TransportFailureIsConnectionError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	client := newTestClient(t, ts.URL)
	_, err := client.GetPages(context.Background(), "/Files/Warehouses", url.Values{})
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("want ConnectionError, got %v", err)
	}
}

func TestDo_MutationErrorCarriesResultCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"Results":[{"Code":"ERR_CODE_IN_USE","Message":"code already exists"}]}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL)
	_, err := client.Do(context.Background(), http.MethodPost, "/Files/Entities", map[string]string{"Code": "C1"})
	var apiErr *ApiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want ApiError, got %v", err)
	}
	if apiErr.Code != "ERR_CODE_IN_USE" {
		t.Errorf("Code = %q", apiErr.Code)
	}
}
