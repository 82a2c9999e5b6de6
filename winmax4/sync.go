package winmax4

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bsm/redislock"
	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/models"
	"github.com/controlink-dev/winmax4-sync/utils"
)

const (
	EntityArticles      = "articles"
	EntityEntities      = "entities"
	EntityFamilies      = "families"
	EntityTaxes         = "taxes"
	EntityWarehouses    = "warehouses"
	EntityDocumentTypes = "document_types"
	EntityPaymentTypes  = "payment_types"
	EntityCurrencies    = "currencies"
	EntityDocuments     = "documents"
)

type syncFunc func(ctx context.Context, run *models.SyncRun, license *models.License, client *Client, fullSync bool) error

var entitySyncFuncs = map[string]syncFunc{
	EntityArticles:      syncArticles,
	EntityEntities:      syncEntities,
	EntityFamilies:      syncFamilies,
	EntityTaxes:         syncTaxes,
	EntityWarehouses:    syncWarehouses,
	EntityDocumentTypes: syncDocumentTypes,
	EntityPaymentTypes:  syncPaymentTypes,
	EntityCurrencies:    syncCurrencies,
	EntityDocuments:     syncDocuments,
}

func KnownEntityType(entityType string) bool {
	_, ok := entitySyncFuncs[entityType]
	return ok
}

type SyncOptions struct {
	LicenseId   string
	FullSync    bool
	TriggeredBy string
	ParentRunId *uint
}

// TriggerSync queues one run per resolved license and hands them to the
// worker path. It returns the queued run ids without waiting for execution.
func TriggerSync(ctx context.Context, entityType string, opts SyncOptions) ([]uint, error) {
	if !KnownEntityType(entityType) {
		return nil, &ValidationError{Field: "entity", Reason: "unknown entity type"}
	}

	licenses, err := resolveLicenses(ctx, opts.LicenseId)
	if err != nil {
		return nil, err
	}
	if len(licenses) == 0 {
		return nil, &ValidationError{Field: "license_id", Reason: "no active licenses"}
	}

	triggeredBy := opts.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = models.SyncTriggeredManual
	}

	runIds := make([]uint, 0, len(licenses))
	for _, license := range licenses {
		run := models.SyncRun{
			LicenseId:   license.LicenseId,
			EntityType:  entityType,
			Status:      models.SyncRunStatusQueued,
			TriggeredBy: triggeredBy,
			FullSync:    opts.FullSync,
			ParentRunId: opts.ParentRunId,
		}
		if err := models.CreateSyncRun(ctx, &run); err != nil {
			return runIds, err
		}
		runIds = append(runIds, run.ID)

		DispatchSyncRun(ctx, SyncPubSubPayload{
			RunId:      run.ID,
			LicenseId:  license.LicenseId,
			EntityType: entityType,
		})
	}
	return runIds, nil
}

// resolveLicenses maps an optional license filter to the set of licenses a
// pass covers. An explicit filter is only legal when multi-tenancy is on.
func resolveLicenses(ctx context.Context, licenseFilter string) ([]*models.License, error) {
	if licenseFilter != "" {
		if !config.MultiTenancyEnabled() {
			return nil, &ValidationError{Field: "license_id", Reason: "multi-tenancy is not enabled"}
		}
		license, err := models.GetLicenseById(ctx, licenseFilter)
		if err != nil {
			return nil, err
		}
		if !utils.DereferencePtr(license.IsActive) {
			return nil, &ValidationError{Field: "license_id", Reason: "license is not active"}
		}
		return []*models.License{license}, nil
	}
	return models.GetActiveLicenses(ctx)
}

// ExecuteRun performs one queued run: lock, authenticate, fetch, reconcile,
// dispatch. Terminal status is written by the batch finalizer, or here when
// the fetch phase fails. Overlap protection is per (entity type, license).
func ExecuteRun(ctx context.Context, payload SyncPubSubPayload) error {
	logger := config.GetLogger()

	if payload.RunId == 0 || payload.LicenseId == "" || payload.EntityType == "" {
		return errors.New("invalid sync payload")
	}
	fn, ok := entitySyncFuncs[payload.EntityType]
	if !ok {
		return fmt.Errorf("unknown entity type %q", payload.EntityType)
	}

	ctx = utils.SetLicenseIdInContext(ctx, payload.LicenseId)

	run, err := models.GetSyncRun(ctx, payload.LicenseId, payload.RunId)
	if err != nil {
		return err
	}
	if run.Status != models.SyncRunStatusQueued {
		return nil
	}

	license, err := models.GetLicenseById(ctx, payload.LicenseId)
	if err != nil {
		markRunFailed(ctx, run, err)
		return err
	}

	locker := config.GetRedisLock()
	if locker != nil {
		lockKey := fmt.Sprintf("winmax4:sync:%s:%s", payload.EntityType, payload.LicenseId)
		lock, lockErr := locker.Obtain(ctx, lockKey, 10*time.Minute, nil)
		if lockErr == redislock.ErrNotObtained {
			err := fmt.Errorf("sync already running for %s/%s", payload.EntityType, payload.LicenseId)
			markRunFailed(ctx, run, err)
			return err
		} else if lockErr != nil {
			config.LogError(logger, "winmax4", "ExecuteRun", "obtain sync lock", lockKey, lockErr)
		} else {
			defer func() {
				_ = lock.Release(ctx)
			}()
		}
	}

	startedAt := time.Now()
	run.StartedAt = &startedAt
	if err := models.UpdateSyncRun(ctx, run, map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}); err != nil {
		return err
	}
	run.Status = models.SyncRunStatusRunning

	client, err := NewClient(license)
	if err != nil {
		markRunFailed(ctx, run, err)
		return err
	}
	if err := client.Authenticate(ctx); err != nil {
		markRunFailed(ctx, run, err)
		return err
	}

	if err := fn(ctx, run, license, client, run.FullSync); err != nil {
		config.LogError(logger, "winmax4", "ExecuteRun", "sync "+payload.EntityType, payload.LicenseId, err)
		markRunFailed(ctx, run, err)
		return err
	}
	return nil
}

// applyWatermark sets the incremental filter when one applies. Day
// granularity: the ERP filters on change date, not time.
func applyWatermark(ctx context.Context, licenseId string, entityType string, fullSync bool, params url.Values) error {
	if fullSync {
		return nil
	}
	since, err := models.GetLastSyncedAt(ctx, licenseId, entityType)
	if err != nil {
		return err
	}
	if since == nil {
		return nil
	}
	params.Set("LastChangeDateAfter", since.Format("2006-01-02"))
	return nil
}

// finalizeRun closes out a run once its batch drains. Fires exactly once.
func finalizeRun(ctx context.Context, run *models.SyncRun, deactivated int) func(BatchSummary) {
	return func(summary BatchSummary) {
		db := config.GetDB()
		for _, failure := range summary.Failures {
			if err := models.CreateSyncRunError(ctx, db, run.ID, run.LicenseId,
				failure.EntityType, failure.Code, errorCodeFor(failure.Err),
				failure.Err.Error(), nil, retryable(failure.Err)); err != nil {
				config.LogError(config.GetLogger(), "winmax4", "finalizeRun", "record task failure", failure.Code, err)
			}
		}

		status := models.SyncRunStatusSuccess
		if summary.Failed > 0 {
			status = models.SyncRunStatusPartial
			if summary.Failed == summary.Total {
				status = models.SyncRunStatusFailed
			}
		}

		finishedAt := time.Now()
		var durationMs int64
		if run.StartedAt != nil {
			durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
		}

		if err := models.UpdateSyncRun(ctx, run, map[string]interface{}{
			"status":         status,
			"finished_at":    finishedAt,
			"duration_ms":    durationMs,
			"records_synced": summary.Total - summary.Failed,
			"deactivated":    deactivated,
			"error_count":    summary.Failed,
		}); err != nil {
			config.LogError(config.GetLogger(), "winmax4", "finalizeRun", "update run", run.ID, err)
		}
	}
}

func markRunFailed(ctx context.Context, run *models.SyncRun, cause error) {
	db := config.GetDB()
	if err := models.CreateSyncRunError(ctx, db, run.ID, run.LicenseId,
		run.EntityType, "", errorCodeFor(cause), cause.Error(), nil, retryable(cause)); err != nil {
		config.LogError(config.GetLogger(), "winmax4", "markRunFailed", "record run error", run.ID, err)
	}

	finishedAt := time.Now()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}
	if err := models.UpdateSyncRun(ctx, run, map[string]interface{}{
		"status":      models.SyncRunStatusFailed,
		"finished_at": finishedAt,
		"duration_ms": durationMs,
		"error_count": run.ErrorCount + 1,
	}); err != nil {
		config.LogError(config.GetLogger(), "winmax4", "markRunFailed", "update run", run.ID, err)
	}
}

func errorCodeFor(err error) string {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return "connection_failed"
	}
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return "api_error"
	}
	var conflict *ReconciliationConflict
	if errors.As(err, &conflict) {
		return "reconciliation_conflict"
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return "invalid_input"
	}
	return "sync_failed"
}

func retryable(err error) bool {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return false
	}
	return true
}

// chunked splits tasks into dispatch-sized groups, preserving order.
func chunked(tasks []Task) [][]Task {
	var chunks [][]Task
	for len(tasks) > 0 {
		n := min(chunkSize, len(tasks))
		chunks = append(chunks, tasks[:n])
		tasks = tasks[n:]
	}
	return chunks
}
