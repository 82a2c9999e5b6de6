package winmax4

import "encoding/json"

// Wire shapes of the ERP API. Field names follow the remote contract, which
// is PascalCase throughout.

type tokenResponse struct {
	Data struct {
		AccessToken struct {
			Value string `json:"Value"`
		} `json:"AccessToken"`
	} `json:"Data"`
}

type pageFilter struct {
	TotalPages   int `json:"TotalPages"`
	TotalResults int `json:"TotalResults"`
	PageNumber   int `json:"PageNumber"`
}

// filterEnvelope decodes just enough of any list response to drive pagination.
type filterEnvelope struct {
	Data struct {
		Filter pageFilter `json:"Filter"`
	} `json:"Data"`
}

// apiResult is the ERP's status envelope on mutations and error responses.
type apiResult struct {
	Results []struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	} `json:"Results"`
}

const (
	resultCodeOK = "OK"

	// The ERP reports an entity create against a taken code with this
	// result code; the push path reacts by updating the holder instead.
	resultCodeCodeInUse = "ERR_CODE_IN_USE"
)

func (r apiResult) firstCode() string {
	if len(r.Results) == 0 {
		return ""
	}
	return r.Results[0].Code
}

func (r apiResult) firstMessage() string {
	if len(r.Results) == 0 {
		return ""
	}
	return r.Results[0].Message
}

type currencyPage struct {
	Data struct {
		Filter     pageFilter     `json:"Filter"`
		Currencies []currencyJSON `json:"Currencies"`
	} `json:"Data"`
}

type currencyJSON struct {
	ID          int    `json:"ID"`
	Code        string `json:"Code"`
	Designation string `json:"Designation"`
	IsActive    bool   `json:"IsActive"`
}

type warehousePage struct {
	Data struct {
		Filter     pageFilter      `json:"Filter"`
		Warehouses []warehouseJSON `json:"Warehouses"`
	} `json:"Data"`
}

type warehouseJSON struct {
	ID          int    `json:"ID"`
	Code        string `json:"Code"`
	Designation string `json:"Designation"`
	IsActive    bool   `json:"IsActive"`
}

type documentTypePage struct {
	Data struct {
		Filter        pageFilter         `json:"Filter"`
		DocumentTypes []documentTypeJSON `json:"DocumentTypes"`
	} `json:"Data"`
}

type documentTypeJSON struct {
	ID              int    `json:"ID"`
	Code            string `json:"Code"`
	Designation     string `json:"Designation"`
	TransactionType int    `json:"TransactionType"`
	EntityType      int    `json:"EntityType"`
	IsActive        bool   `json:"IsActive"`
}

type paymentTypePage struct {
	Data struct {
		Filter       pageFilter        `json:"Filter"`
		PaymentTypes []paymentTypeJSON `json:"PaymentTypes"`
	} `json:"Data"`
}

type paymentTypeJSON struct {
	ID          int    `json:"ID"`
	Code        string `json:"Code"`
	Designation string `json:"Designation"`
	IsActive    bool   `json:"IsActive"`
}

type familyPage struct {
	Data struct {
		Filter   pageFilter   `json:"Filter"`
		Families []familyJSON `json:"Families"`
	} `json:"Data"`
}

type familyJSON struct {
	ID          int             `json:"ID"`
	Code        string          `json:"Code"`
	Designation string          `json:"Designation"`
	IsActive    bool            `json:"IsActive"`
	SubFamilies []subFamilyJSON `json:"SubFamilies"`
}

type subFamilyJSON struct {
	ID             int                `json:"ID"`
	Code           string             `json:"Code"`
	Designation    string             `json:"Designation"`
	IsActive       bool               `json:"IsActive"`
	SubSubFamilies []subSubFamilyJSON `json:"SubSubFamilies"`
}

type subSubFamilyJSON struct {
	ID          int    `json:"ID"`
	Code        string `json:"Code"`
	Designation string `json:"Designation"`
	IsActive    bool   `json:"IsActive"`
}

type taxPage struct {
	Data struct {
		Filter pageFilter `json:"Filter"`
		Taxes  []taxJSON  `json:"Taxes"`
	} `json:"Data"`
}

type taxJSON struct {
	Code        string        `json:"Code"`
	Designation string        `json:"Designation"`
	IsActive    bool          `json:"IsActive"`
	Rates       []taxRateJSON `json:"Rates"`
}

type taxRateJSON struct {
	FixedAmountRate json.Number `json:"FixedAmountRate"`
	PercentageRate  json.Number `json:"PercentageRate"`
}

type articlePage struct {
	Data struct {
		Filter   pageFilter    `json:"Filter"`
		Articles []articleJSON `json:"Articles"`
	} `json:"Data"`
}

type articleJSON struct {
	ID               int                `json:"ID"`
	Code             string             `json:"Code"`
	Designation      string             `json:"Designation"`
	ShortDescription string             `json:"ShortDescription"`
	FamilyCode       string             `json:"FamilyCode"`
	SubFamilyCode    string             `json:"SubFamilyCode"`
	SubSubFamilyCode string             `json:"SubSubFamilyCode"`
	IsActive         bool               `json:"IsActive"`
	Prices           []articlePriceJSON `json:"Prices"`
	Stocks           []articleStockJSON `json:"Stocks"`
	Taxes            []articleTaxJSON   `json:"Taxes"`
}

type articlePriceJSON struct {
	CurrencyCode           string      `json:"CurrencyCode"`
	PriceLine              int         `json:"PriceLine"`
	SalesPriceWithoutTaxes json.Number `json:"SalesPriceWithoutTaxes"`
	SalesPriceWithTaxes    json.Number `json:"SalesPriceWithTaxes"`
}

type articleStockJSON struct {
	WarehouseCode string      `json:"WarehouseCode"`
	Current       json.Number `json:"Current"`
}

type articleTaxJSON struct {
	TaxFeeCode string `json:"TaxFeeCode"`
	TaxFeeType int    `json:"TaxFeeType"`
}

type entityPage struct {
	Data struct {
		Filter   pageFilter   `json:"Filter"`
		Entities []entityJSON `json:"Entities"`
	} `json:"Data"`
}

type entityJSON struct {
	ID          int    `json:"ID"`
	Code        string `json:"Code"`
	Name        string `json:"Name"`
	TaxPayerID  string `json:"TaxPayerID"`
	Address     string `json:"Address"`
	ZipCode     string `json:"ZipCode"`
	Locality    string `json:"Locality"`
	CountryCode string `json:"CountryCode"`
	Phone       string `json:"Phone"`
	MobilePhone string `json:"MobilePhone"`
	Email       string `json:"Email"`
	EntityType  int    `json:"EntityType"`
	IsActive    bool   `json:"IsActive"`
}

type entityMutationResponse struct {
	apiResult
	Data struct {
		Entity entityJSON `json:"Entity"`
	} `json:"Data"`
}

// documentPushRequest is the payload for POST /Transactions/Documents.
type documentPushRequest struct {
	DocumentTypeCode    string                `json:"DocumentTypeCode"`
	WarehouseCode       string                `json:"WarehouseCode"`
	TargetWarehouseCode string                `json:"TargetWarehouseCode,omitempty"`
	Entity              documentEntityRef     `json:"Entity"`
	Details             []documentDetailJSON  `json:"Details"`
	Relations           []documentRelationRef `json:"DocumentRelations,omitempty"`
}

type documentEntityRef struct {
	Code       string `json:"Code"`
	TaxPayerID string `json:"TaxPayerID,omitempty"`
}

type documentDetailJSON struct {
	ArticleCode         string      `json:"ArticleCode"`
	Quantity            json.Number `json:"Quantity"`
	DiscountPercentage  json.Number `json:"DiscountPercentage"`
	DiscountPercentage2 json.Number `json:"DiscountPercentage2"`
	TaxFeeCode          string      `json:"TaxFeeCode,omitempty"`
}

type documentRelationRef struct {
	DocumentTypeCode    string `json:"DocumentTypeCode"`
	DocumentSerie       string `json:"DocumentSerie"`
	DocumentNumber      int    `json:"DocumentNumber"`
	DocumentDetailOrder int    `json:"DocumentDetailOrder"`
}

type documentPushResponse struct {
	apiResult
	Data struct {
		Document struct {
			DocumentTypeCode string `json:"DocumentTypeCode"`
			Serie            string `json:"Serie"`
			Number           int    `json:"Number"`
		} `json:"Document"`
	} `json:"Data"`
}

// Trigger and history surface.

type SyncPubSubPayload struct {
	RunId      uint   `json:"run_id"`
	LicenseId  string `json:"license_id"`
	EntityType string `json:"entity_type"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	EntityType    string  `json:"entityType"`
	Status        string  `json:"status"`
	FullSync      bool    `json:"fullSync"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	Deactivated   int     `json:"deactivated"`
	ErrorCount    int     `json:"errorCount"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	Code       string `json:"code"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncStatusResponse struct {
	EntityType   string  `json:"entityType"`
	LastSyncedAt *string `json:"lastSyncedAt"`
}
