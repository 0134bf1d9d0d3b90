package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/session"
	"grimm.is/rampart/internal/validation"
)

var (
	loginUser     string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	Long: `Sign in to the management API. Missing credentials are prompted for.
The token is stored according to the session.storage setting and reused by
later commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		username, password := loginUser, loginPassword
		if username == "" || password == "" {
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Username").Value(&username),
				huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password),
			))
			if err := form.Run(); err != nil {
				return err
			}
		}
		if fe := validation.Login(username, password); len(fe) > 0 {
			return fmt.Errorf("%s", joinFieldErrors(fe))
		}

		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		a.store.BeginLogin()
		resp, err := a.api.Login(cmd.Context(), username, password)
		if err != nil {
			a.store.AbortLogin()
			return explainLogin(err)
		}
		if err := a.store.Login(cmd.Context(), resp.Token, resp.User); err != nil {
			// The in-memory session is valid; only persisting failed.
			pterm.Warning.Println("signed in, but the session could not be saved:", err)
		}

		name := username
		if resp.User != nil {
			name = resp.User.Name
		}
		success(out(cmd), Printer.Sprintf(i18n.NoticeLoggedIn, name))
		return nil
	},
}

// explainLogin keeps the server's reason for a rejected sign-in; explain
// would replace it with the session-expired message.
func explainLogin(err error) error {
	return fmt.Errorf("%s", client.AsError(err).Message)
}

// joinFieldErrors localizes fe into one line per field.
func joinFieldErrors(fe validation.FieldErrors) string {
	msgs := fe.Localize(Printer)
	fields := make([]string, 0, len(msgs))
	for f := range msgs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = msgs[f]
	}
	return strings.Join(lines, "\n")
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.store.Logout() {
			info(out(cmd), "Not signed in")
			return nil
		}
		success(out(cmd), Printer.Sprintf(i18n.NoticeLoggedOut))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.api.Me(cmd.Context())
		if err != nil {
			return explain(err)
		}
		a.store.SetUser(user)

		snap := a.store.Snapshot()
		expires := "unknown"
		if !snap.ExpiresAt.IsZero() {
			expires = snap.ExpiresAt.Local().Format(time.RFC1123)
		}
		return render(out(cmd), whoami{User: user, Server: a.api.BaseURL(), ExpiresAt: snap.ExpiresAt}, func() pterm.TableData {
			return keyValues(
				"User", user.Name,
				"ID", user.ID,
				"Role", string(user.Role),
				"Server", a.api.BaseURL(),
				"Expires", expires,
			)
		})
	},
}

type whoami struct {
	User      *session.User `json:"user" yaml:"user"`
	Server    string        `json:"server" yaml:"server"`
	ExpiresAt time.Time     `json:"expiresAt,omitzero" yaml:"expiresAt,omitempty"`
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change your password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var req api.ResetPasswordRequest
		var confirm string
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Current password").EchoMode(huh.EchoModePassword).Value(&req.CurrentPassword),
			huh.NewInput().Title("New password").EchoMode(huh.EchoModePassword).Value(&req.NewPassword),
			huh.NewInput().Title("Repeat new password").EchoMode(huh.EchoModePassword).Value(&confirm).
				Validate(func(s string) error {
					if s != req.NewPassword {
						return errors.New("passwords do not match")
					}
					return nil
				}),
		))
		if err := form.Run(); err != nil {
			return err
		}
		if fe := validation.ResetPassword(req); len(fe) > 0 {
			return fmt.Errorf("%s", joinFieldErrors(fe))
		}

		if err := a.api.ResetPassword(cmd.Context(), req); err != nil {
			return explain(err)
		}
		success(out(cmd), Printer.Sprintf(i18n.NoticePasswordSet))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "user name")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted when omitted)")
}
