package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teemow/tenantmail/internal/credstore"
	"github.com/teemow/tenantmail/internal/gmail"
	"github.com/teemow/tenantmail/internal/logging"
)

type authURLFlags struct {
	commonFlags
	userID string
}

func newAuthURLCmd() *cobra.Command {
	f := &authURLFlags{}

	cmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Print the Google consent URL for a user",
		Long: `Print the URL a user opens to connect their Gmail account.

The URL requests offline access and forces the consent screen, so Google
returns a refresh token. After consent Google redirects to the redirect URI,
which must reach this service's /v1/oauth/callback route.`,
		Example: "  tenantmail auth-url --user-id alice --redirect-uri https://mail.example.com/v1/oauth/callback",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, cmd.OutOrStdout())
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.userID, "user-id", "", "Tenant user id to connect (required)")
	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}

func (f *authURLFlags) run(cmd *cobra.Command, out io.Writer) error {
	if err := credstore.ValidateUserID(f.userID); err != nil {
		return err
	}
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if cfg.OAuth.DefaultRedirectURI == "" {
		return errors.New("a redirect URI is required")
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	// URL generation never reads or writes credentials.
	manager, err := newTokenManager(cfg, credstore.NewMemoryStore(logger), gmail.NewClient(gmail.Options{Logger: logger}), nil, nil, logger)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, manager.GenerateAuthorizationURL(f.userID, ""))
	return err
}
