// File: cmd/inspect.go
package cmd

import (
	"context"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopass/internal/attempt"
	"github.com/xkilldash9x/autopass/internal/browser"
	"github.com/xkilldash9x/autopass/internal/browser/static"
	"github.com/xkilldash9x/autopass/internal/config"
	"github.com/xkilldash9x/autopass/internal/detector"
	"github.com/xkilldash9x/autopass/internal/observability"
)

var inspectFlagKeys = map[string]string{
	"username-selector": "attack.username_selector",
	"password-selector": "attack.password_selector",
	"success-url":       "attack.success_url",
	"success-message":   "attack.success_message",
}

func newInspectCmd(v *viper.Viper) *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect <file.html|url>",
		Short: "Show which fields and submit control a run would use, without a browser",
		Long: `Parses a saved login page (or fetches one over HTTP without running
scripts) and prints the username and password fields, every field
combination, and the submit controls in the order they would be clicked.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd.Flags(), inspectFlagKeys)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			client := &http.Client{Timeout: cfg.Network().NavigationTimeout}
			agent := static.New(static.AutoLoader(client), logger)
			return inspectPage(cmd.Context(), cmd.OutOrStdout(), agent, args[0], cfg.Attack(), logger)
		},
	}

	f := inspectCmd.Flags()
	f.String("username-selector", "", "CSS selector for the username field")
	f.String("password-selector", "", "CSS selector for the password field")
	f.String("success-url", "", "success URL prefix, shown as the active rule")
	f.String("success-message", "", "success message, shown as the active rule")
	return inspectCmd
}

// inspectPage probes target with agent, prints the report and closes the
// agent.
func inspectPage(ctx context.Context, out io.Writer, agent browser.Agent, target string, attack config.AttackConfig, logger *zap.Logger) error {
	defer func() {
		if err := agent.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Debug("Closing inspect session failed.", zap.Error(err))
		}
	}()

	d := attempt.NewDriver(agent,
		detector.NewPolicy(target, attack.SuccessURL, attack.SuccessMessage),
		attempt.Options{
			LoginURL:         target,
			UsernameSelector: attack.UsernameSelector,
			PasswordSelector: attack.PasswordSelector,
		}, logger)

	rep, err := d.Probe(ctx)
	if err != nil {
		return err
	}
	printReport(out, rep)
	return nil
}
