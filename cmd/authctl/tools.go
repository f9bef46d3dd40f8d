package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sportsprop/authcore/jwt"
	"github.com/sportsprop/authcore/password"
	"github.com/sportsprop/authcore/permission"
	"github.com/sportsprop/authcore/totp"
)

/*
====================================
PASSWORDS
====================================
*/

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [password]",
		Short: "Hash a password with the configured algorithm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			hasher, err := password.NewHasher(cfg.Password.Hasher)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func newVerifyHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-hash [password] [hash]",
		Short: "Check a password against a stored hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			hasher, err := password.NewHasher(cfg.Password.Hasher)
			if err != nil {
				return err
			}
			ok, err := hasher.Verify(args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("password does not match")
			}
			stale, err := hasher.NeedsRehash(args[1])
			if err != nil {
				return err
			}
			fmt.Printf("match (rehash needed: %t)\n", stale)
			return nil
		},
	}
}

func newAssessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess [password]",
		Short: "Score a password against the strength policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			policy, err := password.NewPolicy(cfg.Password.Policy)
			if err != nil {
				return err
			}
			identity, _ := cmd.Flags().GetString("identity")
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")

			a := policy.AssessFor(args[0], password.Profile{Username: identity, Name: name, Email: email})
			if err := printJSON(a); err != nil {
				return err
			}
			for _, msg := range policy.Feedback(a) {
				fmt.Println("- " + msg)
			}
			if !a.Overall {
				os.Exit(3)
			}
			return nil
		},
	}
	cmd.Flags().String("identity", "", "username checked for personal information")
	cmd.Flags().String("name", "", "display name checked for personal information")
	cmd.Flags().String("email", "", "e-mail checked for personal information")
	return cmd
}

/*
====================================
TOTP
====================================
*/

func newTOTPCmd() *cobra.Command {
	totpCmd := &cobra.Command{
		Use:   "totp",
		Short: "TOTP secret, code and backup-code helpers",
	}

	totpCmd.AddCommand(&cobra.Command{
		Use:   "secret",
		Short: "Generate a new base32 secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := authenticator(cmd)
			if err != nil {
				return err
			}
			secret, err := auth.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Println(secret)
			return nil
		},
	})

	totpCmd.AddCommand(&cobra.Command{
		Use:   "uri [identity] [secret]",
		Short: "Print the otpauth:// provisioning URI",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := authenticator(cmd)
			if err != nil {
				return err
			}
			uri, err := auth.ProvisioningURI(args[0], args[1], "")
			if err != nil {
				return err
			}
			fmt.Println(uri)
			return nil
		},
	})

	totpCmd.AddCommand(&cobra.Command{
		Use:   "code [secret]",
		Short: "Print the code for the current time step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := authenticator(cmd)
			if err != nil {
				return err
			}
			code, err := auth.Code(args[0])
			if err != nil {
				return err
			}
			fmt.Println(code)
			return nil
		},
	})

	totpCmd.AddCommand(&cobra.Command{
		Use:   "verify [secret] [code]",
		Short: "Check a code within the configured window",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := authenticator(cmd)
			if err != nil {
				return err
			}
			if !auth.VerifyDefault(args[0], args[1]) {
				return errors.New("code rejected")
			}
			fmt.Println("code accepted")
			return nil
		},
	})

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Generate a batch of backup codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := authenticator(cmd)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("count")
			days, _ := cmd.Flags().GetInt("days")
			codes, err := auth.GenerateBackupCodes(n, days)
			if err != nil {
				return err
			}
			for _, c := range codes {
				fmt.Printf("%s  (expires %s)\n", totp.FormatBackupCode(c.Code), c.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	backupCmd.Flags().Int("count", 0, "number of codes (default from config)")
	backupCmd.Flags().Int("days", 0, "validity in days (default from config)")
	totpCmd.AddCommand(backupCmd)

	return totpCmd
}

func authenticator(cmd *cobra.Command) (*totp.Authenticator, error) {
	cfg, err := readConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.TOTP.Validate(); err != nil {
		return nil, err
	}
	return totp.New(cfg.TOTP, nil), nil
}

/*
====================================
TOKENS
====================================
*/

func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue or inspect bearer tokens with the configured secret",
	}

	issueCmd := &cobra.Command{
		Use:   "issue [identity] [role...]",
		Short: "Sign a token for identity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := tokenManager(cmd)
			if err != nil {
				return err
			}
			roles := args[1:]
			if len(roles) > 0 {
				if err := checkRoles(roles); err != nil {
					return err
				}
			}
			token, err := m.Issue(args[0], roles)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.AddCommand(issueCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a token and print its claims and permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := tokenManager(cmd)
			if err != nil {
				return err
			}
			var required []permission.Permission
			names, _ := cmd.Flags().GetStringSlice("require")
			for _, name := range names {
				p, ok := permission.ParsePermission(name)
				if !ok {
					return fmt.Errorf("unknown permission %q", name)
				}
				required = append(required, p)
			}

			claims, err := m.Authorize(args[0], required...)
			if err != nil {
				return err
			}
			var perms []string
			for _, p := range claims.Permissions().Slice() {
				perms = append(perms, p.String())
			}
			return printJSON(map[string]any{
				"user_id":     claims.UserID,
				"roles":       claims.Roles,
				"expires_at":  claims.ExpiresAt.Time.UTC(),
				"permissions": perms,
			})
		},
	}
	verifyCmd.Flags().StringSlice("require", nil, "permission the token must grant (repeatable, any one suffices)")
	tokenCmd.AddCommand(verifyCmd)

	return tokenCmd
}

func tokenManager(cmd *cobra.Command) (*jwt.Manager, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return jwt.NewManager(jwt.Config{
		TTL:    cfg.Token.TTL,
		Secret: cfg.Token.Secret,
		Issuer: cfg.Token.Issuer,
		Leeway: cfg.Token.Leeway,
		KeyID:  cfg.Token.KeyID,
	})
}

/*
====================================
CONFIG
====================================
*/

func newLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate the configuration and report risky settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			warnings := cfg.Lint()
			for _, w := range warnings {
				fmt.Printf("%s: %s\n", w.Code, w.Message)
			}
			if len(warnings) == 0 {
				fmt.Println("ok")
			}
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
