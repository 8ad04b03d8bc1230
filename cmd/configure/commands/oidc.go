package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/smart-meds/internal/config"
	"github.com/benvon/smart-meds/internal/services/oidc"
	"github.com/spf13/cobra"
)

const oidcCheckTimeout = 10 * time.Second

// NewOIDCCmd creates the oidc command
func NewOIDCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oidc",
		Short: "Inspect the configured OIDC issuer",
	}
	cmd.AddCommand(newOIDCTestCmd())
	return cmd
}

func newOIDCTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test OIDC configuration",
		Long:  "Check that the issuer's discovery document and key set (OIDC_ISSUER, OIDC_JWKS_URL) are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadForTools()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.OIDCIssuer == "" {
				return fmt.Errorf("OIDC_ISSUER is not set")
			}
			client := &http.Client{Timeout: oidcCheckTimeout}
			return checkOIDC(cmd.Context(), cmd.OutOrStdout(), client, cfg.OIDCIssuer, cfg.JWKSURL())
		},
	}
}

// checkOIDC probes the discovery endpoint and loads the key set the server will verify tokens with
func checkOIDC(ctx context.Context, w io.Writer, client *http.Client, issuer, jwksURL string) error {
	fmt.Fprintf(w, "Issuer: %s\n", issuer)

	discoveryURL := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"
	fmt.Fprintf(w, "\nTesting discovery endpoint: %s\n", discoveryURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build discovery request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach discovery endpoint: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discovery endpoint returned status: %d", resp.StatusCode)
	}
	fmt.Fprintln(w, "✓ Discovery endpoint is accessible")

	fmt.Fprintf(w, "\nTesting JWKS endpoint: %s\n", jwksURL)
	set, err := oidc.NewJWKSManager(client, time.Minute).GetJWKS(ctx, jwksURL)
	if err != nil {
		return fmt.Errorf("failed to load JWKS: %w", err)
	}
	if set.Len() == 0 {
		return fmt.Errorf("JWKS at %s contains no keys", jwksURL)
	}
	fmt.Fprintf(w, "✓ JWKS endpoint returned %d key(s)\n", set.Len())

	fmt.Fprintln(w, "\n✓ OIDC configuration test passed")
	return nil
}
