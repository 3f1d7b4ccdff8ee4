package command

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeConnect          = "integrations.command.connect"
	TypeCompleteCallback = "integrations.command.callback.complete"
	TypeSync             = "integrations.command.sync"
	TypeSyncAll          = "integrations.command.sync_all"
	TypeDisconnect       = "integrations.command.disconnect"
)

type ConnectMessage struct {
	Provider string
	UserID   string
}

func (ConnectMessage) Type() string { return TypeConnect }

func (m ConnectMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return commandValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}

type CompleteCallbackMessage struct {
	Payload core.CallbackPayload
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Payload.State) == "" {
		return commandValidationError("state", "callback state is required")
	}
	return nil
}

type SyncMessage struct {
	Provider string
	UserID   string
}

func (SyncMessage) Type() string { return TypeSync }

func (m SyncMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return commandValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}

type SyncAllMessage struct {
	UserID string
}

func (SyncAllMessage) Type() string { return TypeSyncAll }

func (m SyncAllMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}

type DisconnectMessage struct {
	Provider string
	UserID   string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return commandValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}
