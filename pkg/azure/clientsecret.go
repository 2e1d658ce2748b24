package azure

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2/clientcredentials"
)

// tokenURLFormat is the Azure AD v2 token endpoint for a tenant.
const tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// ClientSecretProvider fetches tokens with a service-principal secret via
// the OAuth2 client-credentials grant.
type ClientSecretProvider struct {
	cfg clientcredentials.Config
	log *slog.Logger
}

// NewClientSecretProvider creates a service-principal token provider.
func NewClientSecretProvider(tenantID, clientID, clientSecret string) *ClientSecretProvider {
	return &ClientSecretProvider{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     fmt.Sprintf(tokenURLFormat, tenantID),
			Scopes:       []string{Scope},
		},
		log: slog.Default(),
	}
}

// Token fetches a token from the tenant's token endpoint.
func (p *ClientSecretProvider) Token(ctx context.Context) (Token, error) {
	token, err := p.cfg.Token(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("client credentials grant: %w", err)
	}
	p.log.Info("fetched access token via service principal", "expires_on", token.Expiry)
	return Token{AccessToken: token.AccessToken, ExpiresOn: token.Expiry}, nil
}

// Verify interface compliance.
var _ TokenProvider = (*ClientSecretProvider)(nil)
