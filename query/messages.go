package query

import (
	"strings"
)

const (
	TypeGetStatus        = "integrations.query.status.get"
	TypeListStatuses     = "integrations.query.status.list"
	TypeListIntegrations = "integrations.query.catalog.list"
	TypeGetUserData      = "integrations.query.user_data.get"
)

type GetStatusMessage struct {
	Provider string
	UserID   string
}

func (GetStatusMessage) Type() string { return TypeGetStatus }

func (m GetStatusMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return queryValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}

type ListStatusesMessage struct {
	UserID string
}

func (ListStatusesMessage) Type() string { return TypeListStatuses }

func (m ListStatusesMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}

type ListIntegrationsMessage struct{}

func (ListIntegrationsMessage) Type() string { return TypeListIntegrations }

func (ListIntegrationsMessage) Validate() error { return nil }

type GetUserDataMessage struct {
	UserID string
}

func (GetUserDataMessage) Type() string { return TypeGetUserData }

func (m GetUserDataMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}
