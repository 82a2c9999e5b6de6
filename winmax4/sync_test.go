package winmax4

import (
	"errors"
	"net/http"
	"testing"
)

func TestKnownEntityType(t *testing.T) {
	for _, entityType := range []string{
		EntityArticles, EntityEntities, EntityFamilies, EntityTaxes,
		EntityWarehouses, EntityDocumentTypes, EntityPaymentTypes,
		EntityCurrencies, EntityDocuments,
	} {
		if !KnownEntityType(entityType) {
			t.Errorf("KnownEntityType(%q) = false", entityType)
		}
	}
	if KnownEntityType("invoices") {
		t.Error("KnownEntityType(invoices) = true")
	}
}

func TestErrorCodeClassification(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{&ConnectionError{URL: "https://erp", Err: errors.New("timeout")}, "connection_failed"},
		{&ApiError{Status: 500, Code: "ERR", Message: "x"}, "api_error"},
		{&ReconciliationConflict{EntityType: "articles", Code: "A1", Ref: "family F1"}, "reconciliation_conflict"},
		{&ValidationError{Field: "license_id", Reason: "missing"}, "invalid_input"},
		{errors.New("plain"), "sync_failed"},
	}
	for _, tc := range cases {
		if got := errorCodeFor(tc.err); got != tc.code {
			t.Errorf("errorCodeFor(%v) = %q, want %q", tc.err, got, tc.code)
		}
	}
}

func TestRetryableClassification(t *testing.T) {
	if !retryable(&ConnectionError{URL: "https://erp", Err: errors.New("timeout")}) {
		t.Error("connection failures must be retryable")
	}
	if !retryable(&ApiError{Status: http.StatusBadGateway}) {
		t.Error("5xx api errors must be retryable")
	}
	if retryable(&ApiError{Status: http.StatusBadRequest}) {
		t.Error("4xx api errors must not be retryable")
	}
	if retryable(&ValidationError{Field: "entity", Reason: "unknown"}) {
		t.Error("validation errors must not be retryable")
	}
}

func TestApiErrorFromBody(t *testing.T) {
	err := apiErrorFromBody(500, []byte(`{"Results":[{"Code":"ERR_X","Message":"broken"}]}`))
	if err.Code != "ERR_X" || err.Message != "broken" || err.Status != 500 {
		t.Errorf("apiErrorFromBody = %+v", err)
	}

	plain := apiErrorFromBody(502, []byte("bad gateway"))
	if plain.Code != "" || plain.Message != "bad gateway" {
		t.Errorf("apiErrorFromBody(plain) = %+v", plain)
	}
}

func TestIsEmptyBody(t *testing.T) {
	for _, body := range []string{"", "  ", "null", "{}", " null "} {
		if !isEmptyBody([]byte(body)) {
			t.Errorf("isEmptyBody(%q) = false", body)
		}
	}
	if isEmptyBody([]byte(`{"Data":{}}`)) {
		t.Error(`isEmptyBody({"Data":{}}) = true`)
	}
}
