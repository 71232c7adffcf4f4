package main

import (
	"fmt"
	"strings"

	"github.com/joshu-sajeev/catalogjobs/internal/rewriter"
	"github.com/joshu-sajeev/catalogjobs/internal/settings"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and store AI settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the effective AI settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, _, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Resolver.Load(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{
			settings.KeyProvider: s.Provider,
			settings.KeyAPIKey:   maskSecret(s.APIKey),
			settings.KeyModel:    s.Model,
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Store a setting. An empty value removes it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], strings.TrimSpace(args[1])
		if !settings.ValidKey(key) {
			return fmt.Errorf("unknown setting %q, expected one of %s", key, strings.Join(settings.Keys, ", "))
		}
		if key == settings.KeyProvider && value != "" &&
			value != rewriter.ProviderOpenAI && value != rewriter.ProviderAnthropic {
			return fmt.Errorf("unknown provider %q", value)
		}

		a, _, _, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if value == "" {
			err = a.Settings.Delete(cmd.Context(), key)
		} else {
			err = a.Settings.Set(cmd.Context(), key, value)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", key)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
