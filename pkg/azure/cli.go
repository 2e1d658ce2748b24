package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// cliExpiresOnLayout is the local-time format `az account get-access-token`
// prints in its expiresOn field.
const cliExpiresOnLayout = "2006-01-02 15:04:05.000000"

// CLIProvider fetches tokens from the locally cached Azure CLI credential.
// The user must have run `az login` beforehand.
type CLIProvider struct {
	log *slog.Logger

	// run executes the az invocation; replaced in tests.
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// NewCLIProvider creates a CLI-backed token provider.
func NewCLIProvider() *CLIProvider {
	return &CLIProvider{
		log: slog.Default(),
		run: func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, "az", args...).Output()
		},
	}
}

// cliTokenResponse is the JSON shape emitted by az. Depending on the CLI
// version either expiresOn (local time string) or expires_on (unix seconds)
// is present.
type cliTokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresOn   string `json:"expiresOn"`
	ExpiresUnix int64  `json:"expires_on"`
}

// Token fetches a token via the Azure CLI.
func (p *CLIProvider) Token(ctx context.Context) (Token, error) {
	out, err := p.run(ctx, "account", "get-access-token",
		"--resource", Scope, "--output", "json")
	if err != nil {
		return Token{}, fmt.Errorf("running az account get-access-token: %w", err)
	}

	var res cliTokenResponse
	if err := json.Unmarshal(out, &res); err != nil {
		return Token{}, fmt.Errorf("parsing az token output: %w", err)
	}
	if res.AccessToken == "" {
		return Token{}, fmt.Errorf("az returned no access token")
	}

	expiresOn, err := parseExpiry(res)
	if err != nil {
		return Token{}, err
	}

	p.log.Debug("fetched access token via azure cli", "expires_on", expiresOn)
	return Token{AccessToken: res.AccessToken, ExpiresOn: expiresOn}, nil
}

// parseExpiry recovers the token expiry from whichever field the CLI
// populated, falling back to the token's own exp claim.
func parseExpiry(res cliTokenResponse) (time.Time, error) {
	if res.ExpiresUnix > 0 {
		return time.Unix(res.ExpiresUnix, 0), nil
	}
	if res.ExpiresOn != "" {
		if t, err := time.ParseInLocation(cliExpiresOnLayout, res.ExpiresOn, time.Local); err == nil {
			return t, nil
		}
		if unix, err := strconv.ParseInt(res.ExpiresOn, 10, 64); err == nil {
			return time.Unix(unix, 0), nil
		}
	}
	return expiryFromClaims(res.AccessToken)
}

// expiryFromClaims reads the exp claim without verifying the signature. The
// token is consumed, not issued, here; the remote service verifies it.
func expiryFromClaims(accessToken string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token claims: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}

// Verify interface compliance.
var _ TokenProvider = (*CLIProvider)(nil)
