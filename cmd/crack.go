// File: cmd/crack.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopass/internal/attempt"
	"github.com/xkilldash9x/autopass/internal/browser"
	"github.com/xkilldash9x/autopass/internal/browser/chrome"
	"github.com/xkilldash9x/autopass/internal/config"
	"github.com/xkilldash9x/autopass/internal/coordinator"
	"github.com/xkilldash9x/autopass/internal/detector"
	"github.com/xkilldash9x/autopass/internal/observability"
	"github.com/xkilldash9x/autopass/internal/resume"
	"github.com/xkilldash9x/autopass/internal/wordlist"
)

// crackFlagKeys maps the crack command's flags onto config keys.
var crackFlagKeys = map[string]string{
	"username":          "attack.username",
	"passwords":         "attack.passwords",
	"password-only":     "attack.password_only",
	"delay":             "attack.delay",
	"success-url":       "attack.success_url",
	"success-message":   "attack.success_message",
	"workers":           "attack.workers",
	"max-length":        "attack.max_length",
	"charset":           "attack.charset",
	"blacklist":         "attack.blacklist",
	"whitelist":         "attack.whitelist",
	"common-passwords":  "attack.common_passwords",
	"common-usernames":  "attack.common_usernames",
	"resume":            "attack.resume",
	"resume-file":       "attack.resume_file",
	"dry-run":           "attack.dry_run",
	"username-selector": "attack.username_selector",
	"password-selector": "attack.password_selector",
	"rate-limit":        "attack.rate_limit",
	"proxy":             "network.proxy",
	"headless":          "browser.headless",
}

// sessionFactory opens the browser backing a run and returns its shutdown
// hook. Tests replace it.
type sessionFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browser.Factory, func(context.Context) error, error)

var newSessions sessionFactory = chromeSessions

func chromeSessions(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browser.Factory, func(context.Context) error, error) {
	b, n := cfg.Browser(), cfg.Network()
	m, err := chrome.NewManager(ctx, chrome.Options{
		Headless:          b.Headless,
		IgnoreTLSErrors:   b.IgnoreTLSErrors,
		Proxy:             n.Proxy,
		UserAgent:         b.UserAgent,
		ExecPath:          b.ExecPath,
		Args:              b.Args,
		NavigationTimeout: n.NavigationTimeout,
		ActionTimeout:     b.ActionTimeout,
		FreshSession:      b.FreshSession,
		LaunchTimeout:     b.LaunchTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return m, m.Shutdown, nil
}

func newCrackCmd(v *viper.Viper) *cobra.Command {
	d := config.NewDefaultConfig()
	crackCmd := &cobra.Command{
		Use:   "crack <login-url>",
		Short: "Try credentials against a login form until one succeeds",
		Long: `Tries credentials against the login form at <login-url>.

With --username and --passwords every password is tried for that user.
With only --username, passwords are generated over the charset, longest
first. With only --passwords, usernames are generated and each one is tried
with every password (or the passwords alone with --password-only). With
neither, username and password pairs are generated.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd.Flags(), crackFlagKeys)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			return runCrack(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], observability.GetLogger())
		},
	}

	a := d.Attack()
	f := crackCmd.Flags()
	f.StringP("username", "u", "", "username to attack; omit to generate usernames")
	f.StringP("passwords", "p", "", "password wordlist file or comma separated list")
	f.Bool("password-only", false, "the form has no username field; try passwords alone")
	f.Duration("delay", a.Delay, "wait after submitting before checking the result")
	f.String("success-url", "", "success when the page URL starts with this")
	f.String("success-message", "", "success when the page contains this text")
	f.IntP("workers", "w", a.Workers, "parallel browser sessions")
	f.Int("max-length", a.MaxLength, "longest generated username or password")
	f.String("charset", a.Charset, "characters used for generation")
	f.String("blacklist", "", "characters removed from the charset")
	f.String("whitelist", "", "keep only these charset characters")
	f.String("common-passwords", "", "passwords tried before everything else (file or list)")
	f.String("common-usernames", "", "usernames tried before everything else (file or list)")
	f.Bool("resume", false, "continue from the saved progress record")
	f.String("resume-file", a.ResumeFile, "where progress is saved")
	f.Bool("dry-run", false, "locate the fields and submit control, then stop without submitting")
	f.String("username-selector", "", "CSS selector for the username field")
	f.String("password-selector", "", "CSS selector for the password field")
	f.Float64("rate-limit", 0, "maximum attempts per second across all workers; 0 is unlimited")
	f.String("proxy", "", "proxy server handed to the browser")
	f.Bool("headless", d.Browser().Headless, "run the browser without a window")
	return crackCmd
}

// runCrack assembles the run from cfg and reports its result to out.
func runCrack(ctx context.Context, out io.Writer, cfg *config.Config, loginURL string, logger *zap.Logger) error {
	attack := cfg.Attack()
	logger = logger.With(zap.String("component", "crack"), zap.String("url", loginURL))

	charset, err := attack.BuildCharset()
	if err != nil {
		return err
	}
	cands, err := loadCandidates(attack, logger)
	if err != nil {
		return err
	}

	policy := detector.NewPolicy(loginURL, attack.SuccessURL, attack.SuccessMessage)
	attemptOpts := attempt.Options{
		LoginURL:         loginURL,
		UsernameSelector: attack.UsernameSelector,
		PasswordSelector: attack.PasswordSelector,
		LoadWait:         cfg.Network().PostLoadWait,
		Delay:            attack.Delay,
		SubmitSettle:     attack.SubmitSettle,
	}

	factory, shutdown, err := newSessions(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown failed.", zap.Error(err))
		}
	}()

	if attack.DryRun {
		return dryRun(ctx, out, factory, policy, attemptOpts, logger)
	}

	store, err := resume.NewStore(attack.ResumeFile, logger)
	if err != nil {
		return err
	}

	var username *string
	if attack.Username != "" {
		username = &attack.Username
	}
	c, err := coordinator.New(coordinator.Config{
		Workers:            attack.Workers,
		Username:           username,
		PasswordOnly:       attack.PasswordOnly,
		Passwords:          cands.passwords,
		PriorityPasswords:  cands.priorityPasswords,
		PriorityUsernames:  cands.priorityUsernames,
		Charset:            charset,
		MaxLength:          attack.MaxLength,
		RateLimit:          attack.RateLimit,
		Resume:             attack.Resume,
		CheckpointInterval: attack.CheckpointInterval,
		Attempt:            attemptOpts,
		Policy:             policy,
	}, factory, store, logger)
	if err != nil {
		return err
	}

	res, runErr := c.Run(ctx)
	printResult(out, res, store.Path())
	return runErr
}

type candidates struct {
	passwords         []string
	priorityPasswords []string
	priorityUsernames []string
}

func loadCandidates(attack config.AttackConfig, logger *zap.Logger) (candidates, error) {
	var out candidates
	var err error

	if attack.Passwords != "" {
		if out.passwords, err = wordlist.Load(attack.Passwords); err != nil {
			return out, fmt.Errorf("loading passwords: %w", err)
		}
		if len(out.passwords) == 0 {
			return out, errors.New("password list is empty")
		}
	} else if attack.Username == "" && !attack.PasswordOnly && attack.DefaultPasswords != "" {
		// With neither a username nor passwords, a bundled wordlist turns the
		// run into username generation instead of the full cross product.
		switch out.passwords, err = wordlist.ReadFile(attack.DefaultPasswords); {
		case errors.Is(err, os.ErrNotExist):
			logger.Info("Default password list not found; generating both fields.", zap.String("path", attack.DefaultPasswords))
		case err != nil:
			return out, fmt.Errorf("loading default passwords: %w", err)
		default:
			logger.Info("Using default password list.", zap.String("path", attack.DefaultPasswords), zap.Int("count", len(out.passwords)))
		}
	}

	if attack.CommonPasswords != "" {
		if out.priorityPasswords, err = wordlist.Load(attack.CommonPasswords); err != nil {
			return out, fmt.Errorf("loading common passwords: %w", err)
		}
	}
	if attack.CommonUsernames != "" {
		if out.priorityUsernames, err = wordlist.Load(attack.CommonUsernames); err != nil {
			return out, fmt.Errorf("loading common usernames: %w", err)
		}
	}
	return out, nil
}

// dryRun probes the login page once with a single session.
func dryRun(ctx context.Context, out io.Writer, factory browser.Factory, policy detector.Policy, opts attempt.Options, logger *zap.Logger) (err error) {
	agent, err := factory.NewAgent(ctx, 0)
	if err != nil {
		return fmt.Errorf("opening browser session: %w", err)
	}
	defer func() {
		if cerr := agent.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Debug("Closing dry run session failed.", zap.Error(cerr))
		}
	}()

	rep, err := attempt.NewDriver(agent, policy, opts, logger).Probe(ctx)
	if err != nil {
		return err
	}
	printReport(out, rep)
	if rep.Password == nil {
		fmt.Fprintln(out, "[!] No password field found; a run would abandon every attempt.")
	}
	return nil
}
