package winmax4

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/models"
	"github.com/controlink-dev/winmax4-sync/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// TriggerSyncHandler queues a sync for one entity type. Optional query
// params: license_id (multi-tenant only) and full=true for a full pass.
func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entityType := strings.TrimSpace(c.Param("entity"))
		if !KnownEntityType(entityType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
			return
		}

		opts := SyncOptions{
			LicenseId:   strings.TrimSpace(c.Query("license_id")),
			FullSync:    strings.EqualFold(strings.TrimSpace(c.Query("full")), "true"),
			TriggeredBy: models.SyncTriggeredManual,
		}

		runIds, err := TriggerSync(c.Request.Context(), entityType, opts)
		if err != nil {
			var validation *ValidationError
			if errors.As(err, &validation) {
				c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
				return
			}
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "license not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ids": runIds})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenseId, err := resolveLicenseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.ListSyncRuns(c.Request.Context(), licenseId, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenseId, err := resolveLicenseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		run, err := models.GetSyncRun(c.Request.Context(), licenseId, uint(id))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		runErrors, err := models.ListSyncRunErrors(c.Request.Context(), run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(*run),
			Errors:          mapErrors(runErrors),
		})
	}
}

// RetrySyncRunHandler queues a fresh run with the same parameters, linked to
// the original through parent_run_id.
func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenseId, err := resolveLicenseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		run, err := models.GetSyncRun(c.Request.Context(), licenseId, uint(id))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		newRun := models.SyncRun{
			LicenseId:   run.LicenseId,
			EntityType:  run.EntityType,
			Status:      models.SyncRunStatusQueued,
			TriggeredBy: models.SyncTriggeredRetry,
			FullSync:    run.FullSync,
			ParentRunId: &run.ID,
		}
		if err := models.CreateSyncRun(c.Request.Context(), &newRun); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		DispatchSyncRun(c.Request.Context(), SyncPubSubPayload{
			RunId:      newRun.ID,
			LicenseId:  newRun.LicenseId,
			EntityType: newRun.EntityType,
		})

		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

// StatusHandler reports the per-entity watermarks for a license.
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenseId, err := resolveLicenseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		entityTypes := []string{
			EntityArticles, EntityEntities, EntityFamilies, EntityTaxes,
			EntityWarehouses, EntityDocumentTypes, EntityPaymentTypes,
			EntityCurrencies, EntityDocuments,
		}
		items := make([]SyncStatusResponse, 0, len(entityTypes))
		for _, entityType := range entityTypes {
			lastSyncedAt, err := models.GetLastSyncedAt(c.Request.Context(), licenseId, entityType)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			items = append(items, SyncStatusResponse{
				EntityType:   entityType,
				LastSyncedAt: formatTime(lastSyncedAt),
			})
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

type createLicenseRequest struct {
	LicenseId     string `json:"licenseId"`
	CompanyCode   string `json:"companyCode"`
	Url           string `json:"url"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	TerminalCode  string `json:"terminalCode"`
	SkipTLSVerify bool   `json:"skipTlsVerify"`
}

func CreateLicenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createLicenseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		license, err := models.CreateLicense(c.Request.Context(), &models.NewLicense{
			LicenseId:     req.LicenseId,
			CompanyCode:   req.CompanyCode,
			Url:           req.Url,
			Username:      req.Username,
			Password:      req.Password,
			TerminalCode:  req.TerminalCode,
			SkipTLSVerify: req.SkipTLSVerify,
		})
		if err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, license)
	}
}

type createEntityRequest struct {
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	FiscalNumber string `json:"fiscalNumber"`
	Address      string `json:"address"`
	ZipCode      string `json:"zipCode"`
	Locality     string `json:"locality"`
	CountryCode  string `json:"countryCode"`
	PhoneNumber  string `json:"phoneNumber"`
	MobilePhone  string `json:"mobilePhone"`
	Email        string `json:"email" binding:"omitempty,email"`
	EntityType   int    `json:"entityType"`
}

// CreateEntityHandler stores a locally authored entity. The next entity sync
// pushes it to the ERP and records the assigned remote id.
func CreateEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenseId, err := resolveLicenseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req createEntityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		entity, err := models.CreateEntity(c.Request.Context(), licenseId, &models.NewEntity{
			Code:         req.Code,
			Name:         req.Name,
			FiscalNumber: req.FiscalNumber,
			Address:      req.Address,
			ZipCode:      req.ZipCode,
			Locality:     req.Locality,
			CountryCode:  req.CountryCode,
			PhoneNumber:  req.PhoneNumber,
			MobilePhone:  req.MobilePhone,
			Email:        req.Email,
			EntityType:   req.EntityType,
			IsActive:     true,
		})
		if err != nil {
			var fieldErr *utils.FieldError
			if errors.As(err, &fieldErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entity)
	}
}

// UpdateEntityHandler edits an entity locally and, when the entity is already
// linked to the ERP, pushes the new field values remotely in the same request.
func UpdateEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenseId, err := resolveLicenseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
			return
		}

		var req createEntityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		entity, err := models.UpdateEntity(c.Request.Context(), licenseId, id, &models.NewEntity{
			Code:         req.Code,
			Name:         req.Name,
			FiscalNumber: req.FiscalNumber,
			Address:      req.Address,
			ZipCode:      req.ZipCode,
			Locality:     req.Locality,
			CountryCode:  req.CountryCode,
			PhoneNumber:  req.PhoneNumber,
			MobilePhone:  req.MobilePhone,
			Email:        req.Email,
			EntityType:   req.EntityType,
		})
		if err != nil {
			respondEntityError(c, err)
			return
		}

		if entity.IdWinmax4 != 0 {
			client, err := clientForLicense(c.Request.Context(), licenseId)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			if err := UpdateRemoteEntity(c.Request.Context(), client, licenseId, entity); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, entity)
	}
}

// DeleteEntityHandler removes an entity. Never-pushed entities are retired
// locally; linked ones go through the remote delete, which falls back to
// deactivation when the ERP refuses.
func DeleteEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenseId, err := resolveLicenseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
			return
		}

		entity, err := utils.FetchModel[models.Entity](c.Request.Context(), licenseId, id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if entity.IdWinmax4 == 0 {
			if err := models.DeactivateEntity(c.Request.Context(), licenseId, entity.ID); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.Status(http.StatusNoContent)
			return
		}

		client, err := clientForLicense(c.Request.Context(), licenseId)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if err := DeleteRemoteEntity(c.Request.Context(), client, licenseId, entity); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func respondEntityError(c *gin.Context, err error) {
	var fieldErr *utils.FieldError
	if errors.As(err, &fieldErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Error()})
		return
	}
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// clientForLicense builds an authenticated ERP client for a synchronous
// push call made outside a sync run.
func clientForLicense(ctx context.Context, licenseId string) (*Client, error) {
	license, err := models.GetLicenseById(ctx, licenseId)
	if err != nil {
		return nil, err
	}
	client, err := NewClient(license)
	if err != nil {
		return nil, err
	}
	if err := client.Authenticate(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

type createDocumentDetailRequest struct {
	ArticleCode         string          `json:"articleCode" binding:"required"`
	Designation         string          `json:"designation"`
	Quantity            decimal.Decimal `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unitPrice"`
	DiscountPercentage  decimal.Decimal `json:"discountPercentage"`
	DiscountPercentage2 decimal.Decimal `json:"discountPercentage2"`
	TaxFeeCode          string          `json:"taxFeeCode"`
}

type createDocumentTaxRequest struct {
	TaxFeeCode string          `json:"taxFeeCode" binding:"required"`
	Percentage decimal.Decimal `json:"percentage"`
	Total      decimal.Decimal `json:"total"`
}

type createDocumentRelationRequest struct {
	RelatedTypeCode    string `json:"relatedTypeCode" binding:"required"`
	RelatedSerie       string `json:"relatedSerie"`
	RelatedNumber      int    `json:"relatedNumber"`
	RelatedDetailOrder int    `json:"relatedDetailOrder"`
}

type createDocumentRequest struct {
	DocumentTypeCode    string                          `json:"documentTypeCode" binding:"required"`
	EntityID            int                             `json:"entityId" binding:"required"`
	WarehouseCode       string                          `json:"warehouseCode" binding:"required"`
	TargetWarehouseCode string                          `json:"targetWarehouseCode"`
	DocumentDate        string                          `json:"documentDate"`
	TotalWithoutTaxes   decimal.Decimal                 `json:"totalWithoutTaxes"`
	TotalWithTaxes      decimal.Decimal                 `json:"totalWithTaxes"`
	Details             []createDocumentDetailRequest   `json:"details" binding:"required,min=1"`
	Taxes               []createDocumentTaxRequest      `json:"taxes"`
	Relations           []createDocumentRelationRequest `json:"relations"`
}

// CreateDocumentHandler stores a document pending push. The ERP assigns the
// official serie and number when the document sync pushes it.
func CreateDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenseId, err := resolveLicenseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req createDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		documentDate := time.Now()
		if req.DocumentDate != "" {
			documentDate = utils.ParseRemoteTime(req.DocumentDate)
			if documentDate.IsZero() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid documentDate"})
				return
			}
		}

		input := models.NewDocument{
			DocumentTypeCode:    req.DocumentTypeCode,
			EntityID:            req.EntityID,
			WarehouseCode:       req.WarehouseCode,
			TargetWarehouseCode: req.TargetWarehouseCode,
			DocumentDate:        documentDate,
			TotalWithoutTaxes:   req.TotalWithoutTaxes,
			TotalWithTaxes:      req.TotalWithTaxes,
		}
		for _, detail := range req.Details {
			input.Details = append(input.Details, models.NewDocumentDetail{
				ArticleCode:         detail.ArticleCode,
				Designation:         detail.Designation,
				Quantity:            detail.Quantity,
				UnitPrice:           detail.UnitPrice,
				DiscountPercentage:  detail.DiscountPercentage,
				DiscountPercentage2: detail.DiscountPercentage2,
				TaxFeeCode:          detail.TaxFeeCode,
			})
		}
		for _, docTax := range req.Taxes {
			input.Taxes = append(input.Taxes, models.NewDocumentTax{
				TaxFeeCode: docTax.TaxFeeCode,
				Percentage: docTax.Percentage,
				Total:      docTax.Total,
			})
		}
		for _, relation := range req.Relations {
			input.Relations = append(input.Relations, models.NewDocumentRelation{
				RelatedTypeCode:    relation.RelatedTypeCode,
				RelatedSerie:       relation.RelatedSerie,
				RelatedNumber:      relation.RelatedNumber,
				RelatedDetailOrder: relation.RelatedDetailOrder,
			})
		}

		document, err := models.CreateDocument(c.Request.Context(), licenseId, &input)
		if err != nil {
			var fieldErr *utils.FieldError
			if errors.As(err, &fieldErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, document)
	}
}

func GetDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		licenseId, err := resolveLicenseID(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
			return
		}

		document, err := models.GetDocument(c.Request.Context(), licenseId, id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, document)
	}
}

// resolveLicenseID picks the license a read endpoint operates on: the query
// param when multi-tenancy is on, the single active license otherwise. The
// resolved id is put on the request context so the tenant guard scopes every
// query the handler runs afterwards.
func resolveLicenseID(c *gin.Context) (string, error) {
	licenseId := strings.TrimSpace(c.Query("license_id"))
	if licenseId != "" {
		if !config.MultiTenancyEnabled() {
			return "", errors.New("license_id filter requires multi-tenancy")
		}
		scopeRequest(c, licenseId)
		return licenseId, nil
	}

	licenses, err := models.GetActiveLicenses(contextOf(c))
	if err != nil {
		return "", err
	}
	if len(licenses) == 0 {
		return "", errors.New("no active licenses")
	}
	if len(licenses) > 1 {
		return "", errors.New("license_id is required")
	}
	scopeRequest(c, licenses[0].LicenseId)
	return licenses[0].LicenseId, nil
}

func scopeRequest(c *gin.Context, licenseId string) {
	c.Request = c.Request.WithContext(utils.SetLicenseIdInContext(c.Request.Context(), licenseId))
}

func contextOf(c *gin.Context) context.Context {
	return c.Request.Context()
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		EntityType:    run.EntityType,
		Status:        run.Status,
		FullSync:      run.FullSync,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		Deactivated:   run.Deactivated,
		ErrorCount:    run.ErrorCount,
		TriggeredBy:   run.TriggeredBy,
	}
}

func mapErrors(errorsList []models.SyncRunError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:         errItem.ID,
			EntityType: errItem.EntityType,
			Code:       errItem.Code,
			ErrorCode:  errItem.ErrorCode,
			Message:    errItem.Message,
			Retryable:  errItem.Retryable,
		})
	}
	return out
}
