package auth

// Known OAuth scopes used by the classification service.
const (
	ScopeClassificationsRead  = "classifications:read"
	ScopeClassificationsWrite = "classifications:write"
	ScopeModelsManage         = "models:manage"
)
