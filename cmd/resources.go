package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/pki"
	"grimm.is/rampart/internal/resource"
	"grimm.is/rampart/internal/tui"
)

// resourceCommand describes the CLI surface of one resource kind.
type resourceCommand[T resource.Entity] struct {
	Use     string
	Aliases []string
	Kind    resource.Kind[T]
	Header  []string
	Row     func(T) []string

	// Flags registers the editable fields on cmd and returns a function
	// copying the flags the user set onto v.
	Flags func(cmd *cobra.Command) func(cmd *cobra.Command, v *T) error
}

func newResourceCmd[T resource.Entity](rc resourceCommand[T]) *cobra.Command {
	root := &cobra.Command{
		Use:     rc.Use,
		Aliases: rc.Aliases,
		Short:   "Manage " + rc.Kind.Name,
	}

	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + rc.Kind.Name,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := requireSession(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			r := resource.NewController(rc.Kind, a.deps()).List(cmd.Context(), url.Values{})
			if !r.OK() {
				return failure(r)
			}
			items := resource.Filter(r.Value, search)
			return render(out(cmd), items, func() pterm.TableData {
				data := pterm.TableData{rc.Header}
				for _, it := range items {
					data = append(data, rc.Row(it))
				}
				return data
			})
		},
	}
	list.Flags().StringVarP(&search, "search", "s", "", "only show entries containing this text")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := requireSession(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			r := resource.NewController(rc.Kind, a.deps()).Get(cmd.Context(), args[0])
			if !r.OK() {
				return failure(r)
			}
			return render(out(cmd), r.Value, func() pterm.TableData {
				return pterm.TableData{rc.Header, rc.Row(r.Value)}
			})
		},
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an entry",
		Args:  cobra.NoArgs,
	}
	applyCreate := rc.Flags(create)
	create.RunE = func(cmd *cobra.Command, _ []string) error {
		a, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var v T
		if err := applyCreate(cmd, &v); err != nil {
			return err
		}
		r := resource.NewController(rc.Kind, a.deps()).Create(cmd.Context(), v)
		if !r.OK() {
			return failure(r)
		}
		success(cmd.ErrOrStderr(), r.Notice)
		return render(out(cmd), r.Value, func() pterm.TableData {
			return pterm.TableData{rc.Header, rc.Row(r.Value)}
		})
	}

	var showDiff bool
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an entry; fields without a flag keep their value",
		Args:  cobra.ExactArgs(1),
	}
	applyUpdate := rc.Flags(update)
	update.Flags().BoolVar(&showDiff, "diff", true, "print the changes before saving")
	update.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ctrl := resource.NewController(rc.Kind, a.deps())
		cur := ctrl.Get(cmd.Context(), args[0])
		if !cur.OK() {
			return failure(cur)
		}
		next := cur.Value
		if err := applyUpdate(cmd, &next); err != nil {
			return err
		}

		if showDiff {
			text, err := diffYAML(cur.Value, next)
			if err != nil {
				return err
			}
			if text == "" {
				info(cmd.ErrOrStderr(), "No changes")
				return nil
			}
			fmt.Fprint(cmd.ErrOrStderr(), text)
		}

		r := ctrl.Update(cmd.Context(), next)
		if !r.OK() {
			return failure(r)
		}
		success(cmd.ErrOrStderr(), r.Notice)
		return render(out(cmd), r.Value, func() pterm.TableData {
			return pterm.TableData{rc.Header, rc.Row(r.Value)}
		})
	}

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := requireSession(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			r := resource.NewController(rc.Kind, a.deps()).Delete(cmd.Context(), args[0])
			if !r.OK() {
				return failure(r)
			}
			success(out(cmd), r.Notice)
			return nil
		},
	}

	root.AddCommand(list, get, create, update, del)
	return root
}

// diffYAML renders a unified diff of the YAML forms of before and after,
// empty when they are equal.
func diffYAML(before, after any) (string, error) {
	a, err := yaml.Marshal(before)
	if err != nil {
		return "", err
	}
	b, err := yaml.Marshal(after)
	if err != nil {
		return "", err
	}
	if string(a) == string(b) {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "current",
		ToFile:   "updated",
		Context:  3,
	})
}

var sitesCommand = resourceCommand[api.Site]{
	Use:    "sites",
	Kind:   resource.Sites,
	Header: []string{"ID", "Name", "Domain", "Created"},
	Row: func(s api.Site) []string {
		return []string{s.ID, s.Name, s.Domain, s.CreatedAt.Local().Format("2006-01-02 15:04")}
	},
	Flags: func(cmd *cobra.Command) func(*cobra.Command, *api.Site) error {
		fs := cmd.Flags()
		name := fs.String("name", "", "site name")
		domain := fs.String("domain", "", "site URL, e.g. https://shop.example.com")
		desc := fs.String("description", "", "free text")
		return func(cmd *cobra.Command, s *api.Site) error {
			fs := cmd.Flags()
			if fs.Changed("name") {
				s.Name = strings.TrimSpace(*name)
			}
			if fs.Changed("domain") {
				s.Domain = strings.TrimSpace(*domain)
			}
			if fs.Changed("description") {
				s.Description = *desc
			}
			return nil
		}
	},
}

var rulesCommand = resourceCommand[api.Rule]{
	Use:    "rules",
	Kind:   resource.Rules,
	Header: []string{"ID", "Name", "Action", "Status", "Conditions"},
	Row: func(r api.Rule) []string {
		return []string{r.ID, r.Name, r.Action, r.Status, strings.ReplaceAll(tui.FormatConditions(r.Conditions), "\n", "; ")}
	},
	Flags: func(cmd *cobra.Command) func(*cobra.Command, *api.Rule) error {
		fs := cmd.Flags()
		name := fs.String("name", "", "rule name")
		desc := fs.String("description", "", "free text")
		action := fs.String("action", "", "one of "+strings.Join(api.RuleActions, ", "))
		status := fs.String("status", "", "one of "+strings.Join(api.RuleStatuses, ", "))
		conds := fs.StringArray("condition", nil, `match clause "field operator value", repeatable; replaces all conditions`)
		return func(cmd *cobra.Command, r *api.Rule) error {
			fs := cmd.Flags()
			if fs.Changed("name") {
				r.Name = strings.TrimSpace(*name)
			}
			if fs.Changed("description") {
				r.Description = *desc
			}
			if fs.Changed("action") {
				r.Action = *action
			}
			if fs.Changed("status") {
				r.Status = *status
			}
			if fs.Changed("condition") {
				r.Conditions = tui.ParseConditions(strings.Join(*conds, "\n"))
			}
			if r.ID == "" && r.Status == "" {
				r.Status = api.RuleEnabled
			}
			return nil
		}
	},
}

var certificatesCommand = resourceCommand[api.Certificate]{
	Use:     "certificates",
	Aliases: []string{"certs"},
	Kind:    resource.Certificates,
	Header:  []string{"ID", "Domain", "Issuer", "Valid to", "Status"},
	Row: func(c api.Certificate) []string {
		validTo := ""
		if !c.ValidTo.IsZero() {
			validTo = c.ValidTo.Format("2006-01-02")
		}
		return []string{c.ID, c.Domain, c.Issuer, validTo, c.Status}
	},
	Flags: func(cmd *cobra.Command) func(*cobra.Command, *api.Certificate) error {
		fs := cmd.Flags()
		domain := fs.String("domain", "", "host name the certificate serves")
		certFile := fs.String("cert-file", "", "PEM certificate file")
		keyFile := fs.String("key-file", "", "PEM private key file")
		selfSigned := fs.Bool("self-signed", false, "generate a self-signed certificate for --domain instead of reading files")
		validFor := fs.Duration("valid-for", 90*24*time.Hour, "lifetime of a --self-signed certificate")
		cmd.MarkFlagsMutuallyExclusive("self-signed", "cert-file")
		cmd.MarkFlagsMutuallyExclusive("self-signed", "key-file")
		return func(cmd *cobra.Command, c *api.Certificate) error {
			fs := cmd.Flags()
			if fs.Changed("domain") {
				c.Domain = strings.TrimSpace(*domain)
			}
			if fs.Changed("cert-file") {
				data, err := os.ReadFile(*certFile)
				if err != nil {
					return fmt.Errorf("reading certificate: %w", err)
				}
				c.Certificate = string(data)
			}
			if fs.Changed("key-file") {
				data, err := os.ReadFile(*keyFile)
				if err != nil {
					return fmt.Errorf("reading private key: %w", err)
				}
				c.PrivateKey = string(data)
			}
			if *selfSigned {
				if c.Domain == "" {
					return fmt.Errorf("--self-signed needs --domain")
				}
				pair, err := pki.GenerateSelfSigned([]string{c.Domain}, time.Now(), *validFor)
				if err != nil {
					return err
				}
				c.Certificate, c.PrivateKey = string(pair.CertPEM), string(pair.KeyPEM)
			}
			return nil
		}
	},
}
