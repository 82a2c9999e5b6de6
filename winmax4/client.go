package winmax4

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/controlink-dev/winmax4-sync/models"
	"github.com/controlink-dev/winmax4-sync/utils"
)

// Client talks to one ERP installation. The token lives for one coordinator
// run and is never persisted.
type Client struct {
	baseURL      string
	companyCode  string
	username     string
	password     string
	terminalCode string
	token        string
	http         *http.Client
	limiter      <-chan time.Time
}

func NewClient(license *models.License) (*Client, error) {
	baseURL := strings.TrimSpace(license.Url)
	if baseURL == "" {
		return nil, errors.New("license url is empty")
	}

	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("WINMAX4_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	transport := http.DefaultTransport
	if utils.DereferencePtr(license.SkipTLSVerify) {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		companyCode:  license.CompanyCode,
		username:     license.Username,
		password:     license.Password,
		terminalCode: license.TerminalCode,
		http:         &http.Client{Timeout: 30 * time.Second, Transport: transport},
		limiter:      time.Tick(interval),
	}, nil
}

// Authenticate exchanges the license credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context) error {
	payload := map[string]string{
		"Company":      c.companyCode,
		"UserLogin":    c.username,
		"Password":     c.password,
		"TerminalCode": c.terminalCode,
	}
	body, _ := json.Marshal(payload)

	endpoint := c.baseURL + "/Account/GenerateToken"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	<-c.limiter
	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectionError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromBody(resp.StatusCode, respBody)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(parsed.Data.AccessToken.Value) == "" {
		return &ApiError{Status: resp.StatusCode, Message: "token missing in response"}
	}
	c.token = parsed.Data.AccessToken.Value
	return nil
}

// GetPages fetches a list resource and follows Data.Filter.TotalPages,
// returning the raw page bodies in page order. A 404 or empty body yields no
// pages and no error. Callers decode the entity list per page and concatenate;
// the client never deduplicates.
func (c *Client) GetPages(ctx context.Context, path string, params url.Values) ([][]byte, error) {
	first, empty, err := c.getPage(ctx, path, params, 0)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	var envelope filterEnvelope
	if err := json.Unmarshal(first, &envelope); err != nil {
		return nil, fmt.Errorf("decode page filter: %w", err)
	}

	pages := [][]byte{first}
	for page := 2; page <= envelope.Data.Filter.TotalPages; page++ {
		body, empty, err := c.getPage(ctx, path, params, page)
		if err != nil {
			return nil, err
		}
		if empty {
			break
		}
		pages = append(pages, body)
	}
	return pages, nil
}

func (c *Client) getPage(ctx context.Context, path string, params url.Values, pageNumber int) ([]byte, bool, error) {
	endpoint := c.baseURL + path
	query := params.Encode()
	if pageNumber > 1 {
		if query != "" {
			query += "&"
		}
		query += "PageNumber=" + strconv.Itoa(pageNumber)
	}
	if query != "" {
		endpoint = endpoint + "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	<-c.limiter
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, &ConnectionError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, apiErrorFromBody(resp.StatusCode, body)
	}
	if isEmptyBody(body) {
		return nil, true, nil
	}
	return body, false, nil
}

// Do issues a mutation and returns the raw response body. An error response
// surfaces as ApiError carrying Results[0].Code when present.
func (c *Client) Do(ctx context.Context, method string, path string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(body)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	<-c.limiter
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiErrorFromBody(resp.StatusCode, body)
	}
	return body, nil
}

func apiErrorFromBody(status int, body []byte) *ApiError {
	var result apiResult
	if err := json.Unmarshal(body, &result); err == nil && len(result.Results) > 0 {
		return &ApiError{Status: status, Code: result.firstCode(), Message: result.firstMessage()}
	}
	return &ApiError{Status: status, Message: strings.TrimSpace(string(body))}
}

func isEmptyBody(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return trimmed == "" || trimmed == "null" || trimmed == "{}"
}
