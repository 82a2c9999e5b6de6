package models_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/models"
	"github.com/controlink-dev/winmax4-sync/winmax4"
)

// Exercises the watermark ledger and the upsert/deactivate/revive cycle
// against real MySQL and Redis.
func TestSyncLedgerAndReconciliation(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "winmax4_test")
	t.Setenv("WINMAX4_USE_SOFT_DELETES", "true")
	t.Setenv("WINMAX4_RATE_LIMIT_PER_MIN", "60000")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	license, err := models.CreateLicense(ctx, &models.NewLicense{
		LicenseId:   "lic-1",
		CompanyCode: "TESTCO",
		Url:         "https://erp.example.test",
		Username:    "operator",
		Password:    "secret",
	})
	if err != nil {
		t.Fatalf("CreateLicense: %v", err)
	}
	licenseId := license.LicenseId

	t.Run("watermark is monotonic", func(t *testing.T) {
		got, err := models.GetLastSyncedAt(ctx, licenseId, "currencies")
		if err != nil {
			t.Fatalf("GetLastSyncedAt: %v", err)
		}
		if got != nil {
			t.Fatalf("never-synced watermark = %v, want nil", got)
		}

		t1 := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
		if err := models.UpdateLastSyncedAt(ctx, licenseId, "currencies", t1); err != nil {
			t.Fatalf("UpdateLastSyncedAt: %v", err)
		}

		// A slow run finishing late must not rewind the watermark.
		t0 := t1.Add(-24 * time.Hour)
		if err := models.UpdateLastSyncedAt(ctx, licenseId, "currencies", t0); err != nil {
			t.Fatalf("UpdateLastSyncedAt(older): %v", err)
		}
		got, err = models.GetLastSyncedAt(ctx, licenseId, "currencies")
		if err != nil {
			t.Fatalf("GetLastSyncedAt: %v", err)
		}
		if got == nil || !got.Equal(t1) {
			t.Errorf("watermark = %v, want %v", got, t1)
		}

		t2 := t1.Add(time.Hour)
		if err := models.UpdateLastSyncedAt(ctx, licenseId, "currencies", t2); err != nil {
			t.Fatalf("UpdateLastSyncedAt(newer): %v", err)
		}
		got, _ = models.GetLastSyncedAt(ctx, licenseId, "currencies")
		if got == nil || !got.Equal(t2) {
			t.Errorf("watermark = %v, want %v", got, t2)
		}
	})

	t.Run("upsert deactivate revive", func(t *testing.T) {
		_, created, err := models.UpsertCurrency(ctx, licenseId, &models.NewCurrency{
			Code: "EUR", IdWinmax4: 1, Designation: "Euro", IsActive: true,
		})
		if err != nil {
			t.Fatalf("UpsertCurrency: %v", err)
		}
		if !created {
			t.Error("first upsert should create")
		}
		_, _, err = models.UpsertCurrency(ctx, licenseId, &models.NewCurrency{
			Code: "USD", IdWinmax4: 2, Designation: "US Dollar", IsActive: true,
		})
		if err != nil {
			t.Fatalf("UpsertCurrency: %v", err)
		}

		// Replaying the same record must update in place, never duplicate.
		_, created, err = models.UpsertCurrency(ctx, licenseId, &models.NewCurrency{
			Code: "EUR", IdWinmax4: 1, Designation: "Euro (renamed)", IsActive: true,
		})
		if err != nil {
			t.Fatalf("UpsertCurrency replay: %v", err)
		}
		if created {
			t.Error("replay should update, not create")
		}

		// Full-sync diff: USD vanished remotely.
		n, err := models.DeactivateMissingByCode[models.Currency](ctx, licenseId, []string{"EUR"})
		if err != nil {
			t.Fatalf("DeactivateMissingByCode: %v", err)
		}
		if n != 1 {
			t.Errorf("deactivated %d rows, want 1", n)
		}

		codes, err := models.ListActiveCurrencyCodes(ctx, licenseId)
		if err != nil {
			t.Fatalf("ListActiveCurrencyCodes: %v", err)
		}
		if len(codes) != 1 || codes[0] != "EUR" {
			t.Errorf("active codes = %v, want [EUR]", codes)
		}

		// USD came back: the soft-deleted row is revived, not duplicated.
		_, created, err = models.UpsertCurrency(ctx, licenseId, &models.NewCurrency{
			Code: "USD", IdWinmax4: 2, Designation: "US Dollar", IsActive: true,
		})
		if err != nil {
			t.Fatalf("UpsertCurrency revive: %v", err)
		}
		if created {
			t.Error("revive should update the soft-deleted row")
		}
		codes, _ = models.ListActiveCurrencyCodes(ctx, licenseId)
		if len(codes) != 2 {
			t.Errorf("active codes after revive = %v", codes)
		}
	})

	t.Run("article children replaced per currency", func(t *testing.T) {
		family, _, err := models.UpsertFamily(ctx, licenseId, &models.NewFamily{
			Code: "F1", IdWinmax4: 10, Designation: "Drinks", IsActive: true,
		})
		if err != nil {
			t.Fatalf("UpsertFamily: %v", err)
		}

		input := &models.NewArticle{
			Code: "A1", IdWinmax4: 100, Designation: "Espresso",
			FamilyID: &family.ID, IsActive: true,
			Prices: []models.NewArticlePrice{{CurrencyCode: "EUR", PriceLine: 1}},
			Stocks: []models.NewArticleStock{{WarehouseCode: "W1"}},
		}
		if _, _, err := models.UpsertArticle(ctx, licenseId, input); err != nil {
			t.Fatalf("UpsertArticle: %v", err)
		}

		// Second fetch for USD must keep the EUR price rows.
		usdInput := &models.NewArticle{
			Code: "A1", IdWinmax4: 100, Designation: "Espresso",
			FamilyID: &family.ID, IsActive: true,
			Prices: []models.NewArticlePrice{{CurrencyCode: "USD", PriceLine: 1}},
			Stocks: []models.NewArticleStock{{WarehouseCode: "W1"}},
		}
		if _, _, err := models.UpsertArticle(ctx, licenseId, usdInput); err != nil {
			t.Fatalf("UpsertArticle(USD): %v", err)
		}

		article, err := models.GetArticleByCode(ctx, licenseId, "A1")
		if err != nil {
			t.Fatalf("GetArticleByCode: %v", err)
		}
		if len(article.Prices) != 2 {
			t.Errorf("prices = %d, want 2 (one per currency)", len(article.Prices))
		}
		if len(article.Stocks) != 1 {
			t.Errorf("stocks = %d, want 1 (replaced, not accumulated)", len(article.Stocks))
		}
	})

	t.Run("entity matched by remote id across code change", func(t *testing.T) {
		_, created, err := models.UpsertEntityFromRemote(ctx, licenseId, &models.NewEntity{
			IdWinmax4: 500, Code: "C1", Name: "Cliente Um", IsActive: true,
		})
		if err != nil {
			t.Fatalf("UpsertEntityFromRemote: %v", err)
		}
		if !created {
			t.Error("first upsert should create")
		}

		// Entity codes are reusable remotely; a code change must land on the
		// same local row.
		_, created, err = models.UpsertEntityFromRemote(ctx, licenseId, &models.NewEntity{
			IdWinmax4: 500, Code: "C1-NEW", Name: "Cliente Um", IsActive: true,
		})
		if err != nil {
			t.Fatalf("UpsertEntityFromRemote(code change): %v", err)
		}
		if created {
			t.Error("code change should update the existing row")
		}
		entity, err := models.GetEntityByIdWinmax4(ctx, licenseId, 500)
		if err != nil {
			t.Fatalf("GetEntityByIdWinmax4: %v", err)
		}
		if entity.Code != "C1-NEW" {
			t.Errorf("entity code = %q, want C1-NEW", entity.Code)
		}
	})

	t.Run("empty incremental fetch advances watermark", func(t *testing.T) {
		var gotSince string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/Account/GenerateToken":
				fmt.Fprint(w, `{"Data":{"AccessToken":{"Value":"tok"}}}`)
			case "/Files/Currencies":
				gotSince = r.URL.Query().Get("LastChangeDateAfter")
				w.WriteHeader(http.StatusNotFound)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer ts.Close()

		lic := createSyncLicense(t, ctx, "lic-sync-empty", ts.URL)
		t0 := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
		if err := models.UpdateLastSyncedAt(ctx, lic, winmax4.EntityCurrencies, t0); err != nil {
			t.Fatalf("UpdateLastSyncedAt: %v", err)
		}

		run := queueSyncRun(t, ctx, lic, winmax4.EntityCurrencies)
		if err := winmax4.ExecuteRun(ctx, winmax4.SyncPubSubPayload{
			RunId: run.ID, LicenseId: lic, EntityType: winmax4.EntityCurrencies,
		}); err != nil {
			t.Fatalf("ExecuteRun: %v", err)
		}
		run = waitForRun(t, ctx, lic, run.ID)

		if run.Status != models.SyncRunStatusSuccess {
			t.Errorf("run status = %q, want success", run.Status)
		}
		if run.ErrorCount != 0 || run.RecordsSynced != 0 {
			t.Errorf("errors = %d, records = %d, want 0/0", run.ErrorCount, run.RecordsSynced)
		}
		if gotSince != t0.Format("2006-01-02") {
			t.Errorf("LastChangeDateAfter = %q, want %q", gotSince, t0.Format("2006-01-02"))
		}
		wm, err := models.GetLastSyncedAt(ctx, lic, winmax4.EntityCurrencies)
		if err != nil {
			t.Fatalf("GetLastSyncedAt: %v", err)
		}
		if wm == nil || !wm.After(t0) {
			t.Errorf("watermark = %v, want later than %v", wm, t0)
		}
	})

	t.Run("article without family reference is created", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/Account/GenerateToken":
				fmt.Fprint(w, `{"Data":{"AccessToken":{"Value":"tok"}}}`)
			case "/Files/Articles":
				fmt.Fprint(w, `{"Data":{"Filter":{"TotalPages":1},"Articles":[{"Code":"A1","ID":10,"IsActive":true}]}}`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer ts.Close()

		lic := createSyncLicense(t, ctx, "lic-sync-article", ts.URL)
		run := queueSyncRun(t, ctx, lic, winmax4.EntityArticles)
		if err := winmax4.ExecuteRun(ctx, winmax4.SyncPubSubPayload{
			RunId: run.ID, LicenseId: lic, EntityType: winmax4.EntityArticles,
		}); err != nil {
			t.Fatalf("ExecuteRun: %v", err)
		}
		run = waitForRun(t, ctx, lic, run.ID)

		if run.Status != models.SyncRunStatusSuccess || run.ErrorCount != 0 {
			t.Fatalf("run = %q with %d errors, want clean success", run.Status, run.ErrorCount)
		}
		article, err := models.GetArticleByCode(ctx, lic, "A1")
		if err != nil {
			t.Fatalf("GetArticleByCode: %v", err)
		}
		if article.IdWinmax4 != 10 {
			t.Errorf("id_winmax4 = %d, want 10", article.IdWinmax4)
		}
		if article.FamilyID != nil {
			t.Errorf("family_id = %v, want nil for an article without a family", *article.FamilyID)
		}
	})

	t.Run("entity code in use falls back to update", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/Account/GenerateToken":
				fmt.Fprint(w, `{"Data":{"AccessToken":{"Value":"tok"}}}`)
			case r.Method == http.MethodPost:
				// The ERP flags the taken code via the result code on a 400,
				// never via 409.
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"Results":[{"Code":"ERR_CODE_IN_USE","Message":"code already exists"}]}`)
			case r.Method == http.MethodGet && r.URL.Query().Get("Code") != "":
				fmt.Fprint(w, `{"Data":{"Filter":{"TotalPages":1},"Entities":[{"ID":77,"Code":"C9","Name":"Held","IsActive":true}]}}`)
			case r.Method == http.MethodGet:
				w.WriteHeader(http.StatusNotFound)
			case r.Method == http.MethodPut:
				fmt.Fprint(w, `{"Results":[{"Code":"OK"}]}`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer ts.Close()

		lic := createSyncLicense(t, ctx, "lic-sync-entity", ts.URL)
		if _, err := models.CreateEntity(ctx, lic, &models.NewEntity{
			Code: "C9", Name: "Cliente Nove", IsActive: true,
		}); err != nil {
			t.Fatalf("CreateEntity: %v", err)
		}

		run := queueSyncRun(t, ctx, lic, winmax4.EntityEntities)
		if err := winmax4.ExecuteRun(ctx, winmax4.SyncPubSubPayload{
			RunId: run.ID, LicenseId: lic, EntityType: winmax4.EntityEntities,
		}); err != nil {
			t.Fatalf("ExecuteRun: %v", err)
		}
		run = waitForRun(t, ctx, lic, run.ID)

		if run.Status != models.SyncRunStatusSuccess || run.ErrorCount != 0 {
			t.Fatalf("run = %q with %d errors, want clean success", run.Status, run.ErrorCount)
		}
		entity, err := models.GetEntityByIdWinmax4(ctx, lic, 77)
		if err != nil {
			t.Fatalf("GetEntityByIdWinmax4: %v", err)
		}
		if entity.Code != "C9" {
			t.Errorf("entity code = %q, want C9", entity.Code)
		}
	})

	t.Run("document push carries warehouse", func(t *testing.T) {
		var mu sync.Mutex
		var pushedBody []byte
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/Account/GenerateToken":
				fmt.Fprint(w, `{"Data":{"AccessToken":{"Value":"tok"}}}`)
			case "/Transactions/Documents":
				body, _ := io.ReadAll(r.Body)
				mu.Lock()
				pushedBody = body
				mu.Unlock()
				fmt.Fprint(w, `{"Results":[{"Code":"OK"}],"Data":{"Document":{"Serie":"FT2026","Number":42}}}`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer ts.Close()

		lic := createSyncLicense(t, ctx, "lic-sync-doc", ts.URL)
		if _, _, err := models.UpsertWarehouse(ctx, lic, &models.NewWarehouse{
			Code: "W1", IdWinmax4: 1, Designation: "Main", IsActive: true,
		}); err != nil {
			t.Fatalf("UpsertWarehouse: %v", err)
		}
		if _, _, err := models.UpsertDocumentType(ctx, lic, &models.NewDocumentType{
			Code: "FT", IdWinmax4: 1, Designation: "Fatura", TransactionType: 1, IsActive: true,
		}); err != nil {
			t.Fatalf("UpsertDocumentType: %v", err)
		}
		entity, err := models.CreateEntity(ctx, lic, &models.NewEntity{
			Code: "C1", Name: "Cliente Um", IsActive: true,
		})
		if err != nil {
			t.Fatalf("CreateEntity: %v", err)
		}
		document, err := models.CreateDocument(ctx, lic, &models.NewDocument{
			DocumentTypeCode: "FT",
			EntityID:         entity.ID,
			WarehouseCode:    "W1",
			DocumentDate:     time.Now(),
			Details:          []models.NewDocumentDetail{{ArticleCode: "A1"}},
		})
		if err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}

		run := queueSyncRun(t, ctx, lic, winmax4.EntityDocuments)
		if err := winmax4.ExecuteRun(ctx, winmax4.SyncPubSubPayload{
			RunId: run.ID, LicenseId: lic, EntityType: winmax4.EntityDocuments,
		}); err != nil {
			t.Fatalf("ExecuteRun: %v", err)
		}
		run = waitForRun(t, ctx, lic, run.ID)
		if run.Status != models.SyncRunStatusSuccess || run.ErrorCount != 0 {
			t.Fatalf("run = %q with %d errors, want clean success", run.Status, run.ErrorCount)
		}

		pushed, err := models.GetDocument(ctx, lic, document.ID)
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if pushed.Status != models.DocumentStatusPushed || pushed.Serie != "FT2026" || pushed.Number != 42 {
			t.Errorf("document after push = %q %s/%d, want pushed FT2026/42", pushed.Status, pushed.Serie, pushed.Number)
		}

		mu.Lock()
		defer mu.Unlock()
		var payload map[string]interface{}
		if err := json.Unmarshal(pushedBody, &payload); err != nil {
			t.Fatalf("decode pushed payload: %v", err)
		}
		if payload["WarehouseCode"] != "W1" {
			t.Errorf("pushed WarehouseCode = %v, want W1", payload["WarehouseCode"])
		}
	})
}

func createSyncLicense(t *testing.T, ctx context.Context, licenseId, erpURL string) string {
	t.Helper()
	license, err := models.CreateLicense(ctx, &models.NewLicense{
		LicenseId:   licenseId,
		CompanyCode: "TESTCO",
		Url:         erpURL,
		Username:    "operator",
		Password:    "secret",
	})
	if err != nil {
		t.Fatalf("CreateLicense(%s): %v", licenseId, err)
	}
	return license.LicenseId
}

func queueSyncRun(t *testing.T, ctx context.Context, licenseId, entityType string) *models.SyncRun {
	t.Helper()
	run := models.SyncRun{
		LicenseId:   licenseId,
		EntityType:  entityType,
		Status:      models.SyncRunStatusQueued,
		TriggeredBy: models.SyncTriggeredManual,
	}
	if err := models.CreateSyncRun(ctx, &run); err != nil {
		t.Fatalf("CreateSyncRun: %v", err)
	}
	return &run
}

// waitForRun polls until the batch finalizer writes a terminal status.
func waitForRun(t *testing.T, ctx context.Context, licenseId string, runId uint) *models.SyncRun {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		run, err := models.GetSyncRun(ctx, licenseId, runId)
		if err != nil {
			t.Fatalf("GetSyncRun: %v", err)
		}
		if run.Status != models.SyncRunStatusQueued && run.Status != models.SyncRunStatusRunning {
			return run
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("run %d did not reach a terminal status", runId)
	return nil
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("winmax4-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("winmax4-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=winmax4_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
