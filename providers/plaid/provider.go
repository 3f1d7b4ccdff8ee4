package plaid

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/sync"
)

const (
	ProviderID = "plaid"

	EnvSandbox     = "https://sandbox.plaid.com"
	EnvDevelopment = "https://development.plaid.com"
	EnvProduction  = "https://production.plaid.com"

	// Plaid access tokens do not expire on their own; give the stored
	// credential a long nominal lifetime so freshness checks pass.
	accessTokenTTL = 10 * 365 * 24 * time.Hour

	transactionsPageSize = 100
)

// Config carries the Plaid API credentials. Plaid is not OAuth: connect
// mints a link token that boots the Link UI, Link hands the browser a
// public token, and we exchange it server side.
type Config struct {
	ClientID     string
	Secret       string
	BaseURL      string
	ClientName   string
	Products     []string
	CountryCodes []string
	HTTPClient   providers.HTTPDoer
	Now          func() time.Time
}

func DefaultConfig() Config {
	return Config{
		BaseURL:      EnvSandbox,
		ClientName:   "integrations",
		Products:     []string{"transactions"},
		CountryCodes: []string{"US"},
	}
}

func New(cfg Config, deps providers.Deps) (core.Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("plaid: client id is required")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("plaid: secret is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = EnvSandbox
	}
	if strings.TrimSpace(cfg.ClientName) == "" {
		cfg.ClientName = "integrations"
	}
	if len(cfg.Products) == 0 {
		cfg.Products = []string{"transactions"}
	}
	if len(cfg.CountryCodes) == 0 {
		cfg.CountryCodes = []string{"US"}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	api := apiClient{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		secret:       cfg.Secret,
		clientName:   cfg.ClientName,
		products:     cfg.Products,
		countryCodes: cfg.CountryCodes,
		doer:         cfg.HTTPClient,
	}
	return providers.New(providers.Spec{
		ID:          ProviderID,
		StatePrefix: ProviderID,
		ListName:    "Plaid",
		LinkToken:   api.createLinkToken,
		TokenFromCallback: func(ctx context.Context, payload core.CallbackPayload) (core.StoredToken, error) {
			publicToken := strings.TrimSpace(payload.Code)
			if publicToken == "" {
				publicToken = strings.TrimSpace(payload.UserToken)
			}
			if publicToken == "" {
				return core.StoredToken{}, core.NewInvalidCallbackError(ProviderID, "callback carries no public token")
			}
			exchanged, err := api.exchangePublicToken(ctx, publicToken)
			if err != nil {
				return core.StoredToken{}, err
			}
			exchanged.ExpiresAt = now().Add(accessTokenTTL).Unix()
			return exchanged, nil
		},
		Revoke: api.removeItem,
		Resources: []sync.Resource{
			{
				Name:         "transactions",
				ListName:     "Plaid",
				CategoryName: "Transactions",
				Fetch:        api.transactions,
			},
		},
	}, deps)
}

type apiClient struct {
	baseURL      string
	clientID     string
	secret       string
	clientName   string
	products     []string
	countryCodes []string
	doer         providers.HTTPDoer
}

// createLinkToken backs the connect flow: the returned token boots the
// Link UI on the client, which later posts the public token back through
// the callback.
func (c apiClient) createLinkToken(ctx context.Context, userID, _ string) (string, error) {
	var decoded struct {
		LinkToken string `json:"link_token"`
	}
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		Method: http.MethodPost,
		URL:    c.baseURL + "/link/token/create",
		Body: map[string]any{
			"client_id":     c.clientID,
			"secret":        c.secret,
			"client_name":   c.clientName,
			"language":      "en",
			"country_codes": c.countryCodes,
			"products":      c.products,
			"user":          map[string]any{"client_user_id": userID},
		},
	}, &decoded)
	if err != nil {
		return "", err
	}
	if decoded.LinkToken == "" {
		return "", core.NewProviderAPIError(ProviderID, "link token create returned no link token", 0)
	}
	return decoded.LinkToken, nil
}

func (c apiClient) exchangePublicToken(ctx context.Context, publicToken string) (core.StoredToken, error) {
	var decoded struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		Method: http.MethodPost,
		URL:    c.baseURL + "/item/public_token/exchange",
		Body: map[string]any{
			"client_id":    c.clientID,
			"secret":       c.secret,
			"public_token": publicToken,
		},
	}, &decoded)
	if err != nil {
		return core.StoredToken{}, err
	}
	if decoded.AccessToken == "" {
		return core.StoredToken{}, core.NewProviderAPIError(ProviderID, "token exchange returned no access token", 0)
	}
	return core.StoredToken{
		AccessToken:    decoded.AccessToken,
		ProviderUserID: decoded.ItemID,
	}, nil
}

func (c apiClient) removeItem(ctx context.Context, token core.StoredToken) error {
	return providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
		Method: http.MethodPost,
		URL:    c.baseURL + "/item/remove",
		Body: map[string]any{
			"client_id":    c.clientID,
			"secret":       c.secret,
			"access_token": token.AccessToken,
		},
	}, nil)
}

type transactionsResponse struct {
	Transactions []struct {
		TransactionID string   `json:"transaction_id"`
		Name          string   `json:"name"`
		MerchantName  string   `json:"merchant_name"`
		Amount        float64  `json:"amount"`
		ISOCurrency   string   `json:"iso_currency_code"`
		Date          string   `json:"date"`
		Category      []string `json:"category"`
		Pending       bool     `json:"pending"`
	} `json:"transactions"`
	TotalTransactions int `json:"total_transactions"`
}

func (c apiClient) transactions(ctx context.Context, token core.StoredToken, window sync.Window) ([]core.ItemCandidate, error) {
	var candidates []core.ItemCandidate
	offset := 0
	for {
		var decoded transactionsResponse
		err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
			Method: http.MethodPost,
			URL:    c.baseURL + "/transactions/get",
			Body: map[string]any{
				"client_id":    c.clientID,
				"secret":       c.secret,
				"access_token": token.AccessToken,
				"start_date":   window.Since.Format("2006-01-02"),
				"end_date":     window.Until.Format("2006-01-02"),
				"options": map[string]any{
					"count":  transactionsPageSize,
					"offset": offset,
				},
			},
		}, &decoded)
		if err != nil {
			return nil, err
		}

		for _, txn := range decoded.Transactions {
			if txn.TransactionID == "" {
				continue
			}
			title := txn.MerchantName
			if title == "" {
				title = txn.Name
			}
			candidates = append(candidates, core.ItemCandidate{
				CategoryName: "Transactions",
				Title:        title,
				Attributes: map[string]any{
					"amount":   txn.Amount,
					"currency": txn.ISOCurrency,
					"date":     txn.Date,
					"category": txn.Category,
					"pending":  txn.Pending,
				},
				External: core.ExternalRef{
					Provider: ProviderID,
					ID:       txn.TransactionID,
					Type:     "transaction",
				},
			})
		}

		offset += len(decoded.Transactions)
		if offset >= decoded.TotalTransactions || len(decoded.Transactions) == 0 {
			return candidates, nil
		}
	}
}
