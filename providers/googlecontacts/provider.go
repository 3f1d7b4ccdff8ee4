package googlecontacts

import (
	"context"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/sync"
)

const (
	ProviderID = "googlecontacts"
	AuthURL    = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL   = "https://oauth2.googleapis.com/token"
	APIBaseURL = "https://people.googleapis.com/v1"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scopes       []string
	HTTPClient   providers.HTTPDoer
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		APIBaseURL: APIBaseURL,
		Scopes:     []string{"https://www.googleapis.com/auth/contacts.readonly"},
	}
}

func New(cfg Config, deps providers.Deps) (core.Provider, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}

	api := apiClient{baseURL: cfg.APIBaseURL, doer: cfg.HTTPClient}
	return providers.New(providers.Spec{
		ID:       ProviderID,
		ListName: "Google Contacts",
		OAuth: providers.OAuth2Config{
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			ExtraAuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
			HTTPClient: cfg.HTTPClient,
		},
		Resources: []sync.Resource{
			{
				Name:         "contacts",
				ListName:     "Google Contacts",
				CategoryName: "Contacts",
				Fetch:        api.contacts,
			},
		},
	}, deps)
}

type apiClient struct {
	baseURL string
	doer    providers.HTTPDoer
}

type connectionsResponse struct {
	Connections []struct {
		ResourceName string `json:"resourceName"`
		Names        []struct {
			DisplayName string `json:"displayName"`
		} `json:"names"`
		EmailAddresses []struct {
			Value string `json:"value"`
		} `json:"emailAddresses"`
		PhoneNumbers []struct {
			Value string `json:"value"`
		} `json:"phoneNumbers"`
		Organizations []struct {
			Name string `json:"name"`
		} `json:"organizations"`
	} `json:"connections"`
	NextPageToken string `json:"nextPageToken"`
}

func (c apiClient) contacts(ctx context.Context, token core.StoredToken, _ sync.Window) ([]core.ItemCandidate, error) {
	var candidates []core.ItemCandidate
	pageToken := ""
	for {
		endpoint := c.baseURL + "/people/me/connections?personFields=names,emailAddresses,phoneNumbers,organizations&pageSize=200"
		if pageToken != "" {
			endpoint += "&pageToken=" + pageToken
		}

		var decoded connectionsResponse
		err := providers.DoJSON(ctx, c.doer, ProviderID, providers.APIRequest{
			URL:         endpoint,
			AccessToken: token.AccessToken,
		}, &decoded)
		if err != nil {
			return nil, err
		}

		for _, person := range decoded.Connections {
			if person.ResourceName == "" {
				continue
			}
			name := ""
			if len(person.Names) > 0 {
				name = person.Names[0].DisplayName
			}
			email := ""
			if len(person.EmailAddresses) > 0 {
				email = person.EmailAddresses[0].Value
			}
			if name == "" {
				name = email
			}
			if name == "" {
				continue
			}
			phone := ""
			if len(person.PhoneNumbers) > 0 {
				phone = person.PhoneNumbers[0].Value
			}
			organization := ""
			if len(person.Organizations) > 0 {
				organization = person.Organizations[0].Name
			}
			candidates = append(candidates, core.ItemCandidate{
				CategoryName: "Contacts",
				Title:        name,
				Attributes: map[string]any{
					"email":        email,
					"phone":        phone,
					"organization": organization,
				},
				External: core.ExternalRef{
					Provider: ProviderID,
					ID:       strings.TrimPrefix(person.ResourceName, "people/"),
					Type:     "contact",
				},
			})
		}

		if decoded.NextPageToken == "" {
			return candidates, nil
		}
		pageToken = decoded.NextPageToken
	}
}
