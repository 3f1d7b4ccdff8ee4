package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-integrations/core"
)

// MutatingService is the orchestrator surface the commands delegate to.
type MutatingService interface {
	Connect(ctx context.Context, providerID, userID string) (core.ConnectResult, error)
	HandleCallbackWithUserData(ctx context.Context, payload core.CallbackPayload) (core.CallbackOutcome, error)
	Sync(ctx context.Context, providerID, userID string) (core.SyncResult, error)
	SyncAll(ctx context.Context, userID string) ([]core.SyncResult, error)
	Disconnect(ctx context.Context, providerID, userID string) (core.DisconnectResult, error)
}

type ConnectCommand struct {
	service MutatingService
}

func NewConnectCommand(service MutatingService) *ConnectCommand {
	return &ConnectCommand{service: service}
}

func (c *ConnectCommand) Execute(ctx context.Context, msg ConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	out, err := c.service.Connect(ctx, msg.Provider, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.HandleCallbackWithUserData(ctx, msg.Payload)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncCommand struct {
	service MutatingService
}

func NewSyncCommand(service MutatingService) *SyncCommand {
	return &SyncCommand{service: service}
}

func (c *SyncCommand) Execute(ctx context.Context, msg SyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.Sync(ctx, msg.Provider, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncAllCommand struct {
	service MutatingService
}

func NewSyncAllCommand(service MutatingService) *SyncAllCommand {
	return &SyncAllCommand{service: service}
}

func (c *SyncAllCommand) Execute(ctx context.Context, msg SyncAllMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.SyncAll(ctx, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	out, err := c.service.Disconnect(ctx, msg.Provider, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
