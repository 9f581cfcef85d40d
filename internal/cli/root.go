// Package cli is the hotpotato command line: account commands, the
// interactive listing flow and listing management.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/raine/hotpotato/internal/app"
	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/config"
)

// AppFactory builds the application for one command. The command closes
// it when done.
type AppFactory func(ctx context.Context) (*app.App, error)

type cli struct {
	newApp      AppFactory
	interactive func() bool
}

// DefaultAppFactory loads config.env and the environment, runs the setup
// wizard when required values are missing in a terminal, and builds the
// app.
func DefaultAppFactory(ctx context.Context) (*app.App, error) {
	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if missing := cfg.Missing(); len(missing) > 0 && config.IsInteractiveTerminal() {
		if !config.RunSetupWizard() {
			return nil, apperr.Config("setup was not completed")
		}
		if cfg, err = config.Load(); err != nil {
			return nil, err
		}
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level")
	}
	return app.New(ctx, cfg)
}

// NewRootCmd returns the root command. A nil factory uses
// DefaultAppFactory.
func NewRootCmd(factory AppFactory) *cobra.Command {
	if factory == nil {
		factory = DefaultAppFactory
	}
	c := &cli{newApp: factory, interactive: config.IsInteractiveTerminal}

	root := &cobra.Command{
		Use:           "hotpotato",
		Short:         "Turn a photo into a marketplace listing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		c.setupCmd(),
		c.signupCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.createCmd(),
		c.scanCmd(),
		c.listCmd(),
		c.showCmd(),
		c.deleteCmd(),
		c.historyCmd(),
	)
	return root
}

// Execute runs the command line and prints a failure the way users should
// see it.
func Execute(ctx context.Context) error {
	root := NewRootCmd(nil)
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errAborted) {
		printError(root.ErrOrStderr(), apperr.Message(err))
	}
	return err
}

// withApp builds the app, runs fn and closes the app.
func (c *cli) withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	a, err := c.newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (c *cli) setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Write the configuration file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.interactive() {
				return apperr.Config("setup needs an interactive terminal")
			}
			if !config.RunSetupWizard() {
				return errAborted
			}
			return nil
		},
	}
}

// credentials returns email and password from flags or, in a terminal,
// from a form.
func (c *cli) credentials(cmd *cobra.Command, title string) (string, string, error) {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if email != "" && password != "" {
		return strings.TrimSpace(email), password, nil
	}
	if !c.interactive() {
		return email, password, nil
	}

	err := runForm(huh.NewForm(huh.NewGroup(
		huh.NewInput().Title(title).Description("Email").Value(&email),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password),
	)))
	return strings.TrimSpace(email), password, err
}

func addCredentialFlags(cmd *cobra.Command) {
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
}

func (c *cli) signupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				email, password, err := c.credentials(cmd, "Create account")
				if err != nil {
					return err
				}
				user, err := a.Session.SignUp(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if _, ok := a.Backend.CurrentSession(); !ok {
					printSuccess(out, "Account created for %s", user.Email)
					printMuted(out, "Confirm your email, then run `hotpotato login`.")
					return nil
				}
				printSuccess(out, "Signed up and signed in as %s", user.Email)
				return nil
			})
		},
	}
	addCredentialFlags(cmd)
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				email, password, err := c.credentials(cmd, "Sign in")
				if err != nil {
					return err
				}
				user, err := a.Session.SignIn(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Signed in as %s", user.Email)
				if !a.Config.PersistSessions() {
					printMuted(cmd.OutOrStdout(), "HOTPOTATO_TOKEN_KEY is not set; the session ends with this command.")
				}
				return nil
			})
		},
	}
	addCredentialFlags(cmd)
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				err := a.SignOut(cmd.Context())
				printSuccess(cmd.OutOrStdout(), "Signed out")
				if err != nil {
					log.Warn().Err(err).Msg("remote sign-out failed")
					printMuted(cmd.OutOrStdout(), "The server did not confirm: %s", apperr.Message(err))
				}
				return nil
			})
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				user, err := a.RequireUser(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, titleStyle.Render(user.Email))
				printMuted(out, "id %s · %s", user.ID, pluralize("listing", "listings", len(a.Listings.Snapshot().Items)))
				return nil
			})
		},
	}
}

func (c *cli) createCmd() *cobra.Command {
	var yes bool
	var overrides Overrides
	cmd := &cobra.Command{
		Use:   "create <image>",
		Short: "Create a listing from a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				if _, err := a.RequireUser(cmd.Context()); err != nil {
					return err
				}

				interactive := !yes && c.interactive()
				var prompter Prompter = autoPrompter{overrides: overrides}
				if interactive {
					prompter = huhPrompter{overrides: overrides}
				}

				out := cmd.OutOrStdout()
				listing, err := runCreate(cmd.Context(), a.Pipeline, prompter, out, args[0], interactive)
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				printSuccess(out, "Listing saved")
				fmt.Fprintln(out, renderListing(*listing))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "accept the AI suggestions without asking")
	cmd.Flags().StringVar(&overrides.ItemName, "name", "", "item name instead of the detected one")
	cmd.Flags().StringVar(&overrides.Title, "title", "", "listing title")
	cmd.Flags().StringVar(&overrides.Description, "description", "", "listing description")
	cmd.Flags().StringVar(&overrides.Price, "price", "", "listing price")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				if _, err := a.RequireUser(cmd.Context()); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				items := a.Listings.Snapshot().Items
				if len(items) == 0 {
					printMuted(out, "No listings yet. Create one with `hotpotato create <photo>`.")
					return nil
				}
				for _, l := range items {
					fmt.Fprintln(out, renderListingRow(l))
				}
				return nil
			})
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	var share bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				if _, err := a.RequireUser(cmd.Context()); err != nil {
					return err
				}
				for _, l := range a.Listings.Snapshot().Items {
					if l.ID != args[0] {
						continue
					}
					if share {
						fmt.Fprintln(cmd.OutOrStdout(), l.ShareText())
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), renderListing(l))
					}
					return nil
				}
				return apperr.Validation(fmt.Sprintf("No listing with id %s", args[0]))
			})
		},
	}
	cmd.Flags().BoolVar(&share, "share", false, "print plain text for pasting into other marketplaces")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				if _, err := a.RequireUser(cmd.Context()); err != nil {
					return err
				}
				id := args[0]
				if !yes && c.interactive() {
					confirmed := false
					err := runForm(huh.NewForm(huh.NewGroup(
						huh.NewConfirm().Title(fmt.Sprintf("Delete listing %s?", id)).Value(&confirmed),
					)))
					if err != nil {
						return err
					}
					if !confirmed {
						return nil
					}
				}
				if err := a.Listings.Delete(cmd.Context(), id); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Deleted %s", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
