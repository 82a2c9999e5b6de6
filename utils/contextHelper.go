package utils

import (
	"context"

	"github.com/controlink-dev/winmax4-sync/appctx"
)

var (
	ContextKeyLicenseId     = appctx.ContextKeyLicenseId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeySkipTenantScope = appctx.ContextKeySkipTenantScope
)

func GetLicenseIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyLicenseId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetLicenseIdInContext(ctx context.Context, licenseId string) context.Context {
	return appctx.Set(ctx, ContextKeyLicenseId, licenseId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetSkipTenantScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipTenantScope, skip)
}
