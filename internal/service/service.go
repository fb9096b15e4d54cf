package service

import (
	"templeadmin/internal/repository"

	"go.uber.org/zap"
)

// Service bundles the application services handed to the HTTP layer.
type Service struct {
	Approval ApprovalService
	Query    QueryService
	Grant    GrantService
}

func NewService(repo *repository.Repository, cache GrantCache, notifier Notifier, logger *zap.Logger) *Service {
	policies := DefaultPolicies(repo.Approval)
	return &Service{
		Approval: NewApprovalService(repo, policies, notifier, logger),
		Query:    NewQueryService(repo, logger),
		Grant:    NewGrantService(repo, cache, logger),
	}
}
