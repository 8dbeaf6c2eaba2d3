package service

import (
	"context"

	"attestry/internal/platform/middleware"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

// ContextAuthorizer proves principal control from the authenticated identity
// the auth middleware stored in the request context. A caller may only act
// as the principal their token names.
type ContextAuthorizer struct{}

func NewContextAuthorizer() *ContextAuthorizer {
	return &ContextAuthorizer{}
}

func (a *ContextAuthorizer) RequireAuth(ctx context.Context, principal domain.Principal) error {
	caller := middleware.GetPrincipal(ctx)
	if caller == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "not_authenticated")
	}
	if domain.Principal(caller) != principal {
		return dErrors.New(dErrors.CodeUnauthorized, "principal_mismatch")
	}
	return nil
}

// AllowAll authorizes every caller as any principal. Dev mode and tests only.
type AllowAll struct{}

func (AllowAll) RequireAuth(context.Context, domain.Principal) error { return nil }
