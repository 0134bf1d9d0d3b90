package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"grimm.is/rampart/internal/config"
	"grimm.is/rampart/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, show and check the configuration file",
	// The file may be broken; subcommands load it themselves.
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger = logging.New(logging.Config{Level: logging.LevelWarn, Output: cmd.ErrOrStderr()})
		if debug {
			logger.SetLevel(logging.LevelDebug)
		}
		return checkFormat(output)
	},
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Default().WriteFile(cfgFile, configForce); err != nil {
			return err
		}
		success(out(cmd), "Wrote "+cfgFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (file, environment and defaults)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if serverURL != "" {
			c.Server.URL = serverURL
		}
		if output != formatTable {
			return render(out(cmd), c, nil)
		}
		_, err = out(cmd).Write(c.Render())
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a config file; - reads stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if len(args) == 1 {
			path = args[0]
		}

		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
			path = "stdin.hcl"
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		if err := validateConfig(path, data); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		success(out(cmd), "Configuration is valid")
		return nil
	},
}

func validateConfig(path string, data []byte) error {
	c, err := config.Parse(path, data)
	if err != nil {
		return err
	}
	return c.Validate()
}

var configEditor string

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the config file and check it before saving",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		editor := configEditor
		if editor == "" {
			editor = os.Getenv("EDITOR")
		}
		if editor == "" {
			editor = "vi"
		}

		original, err := os.ReadFile(cfgFile)
		if os.IsNotExist(err) {
			original = config.Default().Render()
		} else if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		tmp, err := os.CreateTemp("", "rampart-config-*.hcl")
		if err != nil {
			return fmt.Errorf("failed to create temporary file: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(original); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write temporary file: %w", err)
		}
		tmp.Close()

		for {
			ed := exec.Command(editor, tmp.Name())
			ed.Stdin, ed.Stdout, ed.Stderr = os.Stdin, os.Stdout, os.Stderr
			if err := ed.Run(); err != nil {
				return fmt.Errorf("editor failed: %w", err)
			}

			edited, err := os.ReadFile(tmp.Name())
			if err != nil {
				return fmt.Errorf("failed to read edited file: %w", err)
			}
			if string(edited) == string(original) {
				info(out(cmd), "No changes made")
				return nil
			}

			if err := validateConfig(cfgFile, edited); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Validation failed:", err)
				again := true
				if err := huh.NewConfirm().Title("Edit again?").Affirmative("Edit").Negative("Abort").Value(&again).Run(); err != nil || !again {
					info(out(cmd), "Aborted")
					return nil
				}
				continue
			}

			if err := os.WriteFile(cfgFile, edited, 0o600); err != nil {
				return fmt.Errorf("failed to save config file: %w", err)
			}
			success(out(cmd), "Saved "+cfgFile)
			return nil
		}
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configEditCmd.Flags().StringVarP(&configEditor, "editor", "e", "", "editor to use (default: $EDITOR or vi)")
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd, configEditCmd)
}
