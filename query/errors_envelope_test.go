package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-integrations/core"
)

func TestGetStatusMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetStatusMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.IntegrationErrorDataValidation {
		t.Fatalf("expected %q text code, got %q", core.IntegrationErrorDataValidation, rich.TextCode)
	}
}

func TestGetStatusQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetStatusQuery
	_, err := q.Query(context.Background(), GetStatusMessage{})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
