package config

import (
	"context"
	"strings"

	"github.com/controlink-dev/winmax4-sync/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantGuardPlugin enforces multi-tenant isolation by automatically scoping
// queries/updates/deletes to the request's license_id when the model has a license_id column.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include license_id manually.
// - Internal bypass is explicit via context flags.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassTenantScope(ctx) {
		return
	}
	licenseID := licenseIdFromContext(ctx)
	if licenseID == "" {
		return
	}

	// Only apply if the current model/table includes a license_id column.
	if db.Statement.Schema == nil {
		return
	}
	hasLicenseID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "license_id") {
			hasLicenseID = true
			break
		}
	}
	if !hasLicenseID {
		return
	}

	// Don't duplicate an explicit tenant filter.
	if whereHasLicenseID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "license_id"},
				Value:  licenseID,
			},
		},
	})
}

func licenseIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyLicenseId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassTenantScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipTenantScope).(bool); ok && v {
		return true
	}
	return false
}

func whereHasLicenseID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasLicenseID(e) {
			return true
		}
	}
	return false
}

func exprHasLicenseID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsLicenseID(v.Column)
	case clause.Neq:
		return colIsLicenseID(v.Column)
	case clause.IN:
		return colIsLicenseID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasLicenseID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasLicenseID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "license_id")
	default:
		return false
	}
}

func colIsLicenseID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "license_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "license_id")
	default:
		return false
	}
}
