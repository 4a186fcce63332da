package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var (
	flagTenant string
	flagForce  bool
	flagLimit  int
	flagFormat string
	flagCron   string
)

var rootCmd = &cobra.Command{
	Use:   "scenark",
	Short: "Run declarative demo scenarios against sandbox tenants",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Execute a scenario for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(loadConfig())
		if err != nil {
			return err
		}
		defer app.Close()

		result, err := app.orchestrator.Run(cmd.Context(), flagTenant, args[0], flagForce)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <execution-id>",
	Short: "Undo the external resources created by an execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(loadConfig())
		if err != nil {
			return err
		}
		defer app.Close()

		summary, err := app.cleanup.Cleanup(cmd.Context(), flagTenant, args[0])
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "List a tenant's recent executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(loadConfig())
		if err != nil {
			return err
		}
		defer app.Close()

		executions, err := app.orchestrator.ListRecent(cmd.Context(), flagTenant, flagLimit)
		if err != nil {
			return err
		}
		return printJSON(executions)
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog [scenario]",
	Short: "List available scenarios, or describe one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(loadConfig())
		if err != nil {
			return err
		}
		defer app.Close()

		if len(args) == 0 {
			return printJSON(app.catalog.List())
		}
		return printScenario(app, args[0], flagFormat)
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule <scenario>",
	Short: "Register a recurring scenario run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(loadConfig())
		if err != nil {
			return err
		}
		defer app.Close()

		run, err := app.registerSchedule(cmd.Context(), flagTenant, args[0], flagCron)
		if err != nil {
			return err
		}
		return printJSON(run)
	},
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage the sandbox tenant allow-list",
}

var tenantAllowCmd = &cobra.Command{
	Use:   "allow <tenant-id>",
	Short: "Mark a tenant as an allowed sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(loadConfig())
		if err != nil {
			return err
		}
		defer app.Close()
		return app.store.UpsertSandboxTenant(cmd.Context(), args[0], true)
	},
}

var tenantRevokeCmd = &cobra.Command{
	Use:   "revoke <tenant-id>",
	Short: "Remove a tenant from the sandbox allow-list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(loadConfig())
		if err != nil {
			return err
		}
		defer app.Close()
		return app.store.UpsertSandboxTenant(cmd.Context(), args[0], false)
	},
}

var sealCmd = &cobra.Command{
	Use:   "seal <token>",
	Short: "Seal a credential for use in the connections file",
	Long:  "Encrypts a credential with the key in SCENARK_VAULT_KEY and prints the sealed value for the auth_token_sealed field.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := buildVault()
		if err != nil {
			return err
		}
		if vault == nil {
			return fmt.Errorf("SCENARK_VAULT_KEY is not set")
		}
		sealed, err := vault.Seal(args[0])
		if err != nil {
			return err
		}
		fmt.Println(sealed)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP stdio transport, scheduler and admin panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), loadConfig())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the scenark version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("scenark " + version)
	},
}

func main() {
	for _, c := range []*cobra.Command{runCmd, cleanupCmd, executionsCmd, scheduleCmd} {
		c.Flags().StringVarP(&flagTenant, "tenant", "t", "", "tenant identifier")
		c.MarkFlagRequired("tenant")
	}
	runCmd.Flags().BoolVar(&flagForce, "force", false, "bypass the idempotency window")
	executionsCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum executions to list")
	catalogCmd.Flags().StringVar(&flagFormat, "format", "json", "output format: json, yaml, mermaid or ascii")
	scheduleCmd.Flags().StringVar(&flagCron, "cron", "", "cron expression (five fields)")
	scheduleCmd.MarkFlagRequired("cron")

	tenantCmd.AddCommand(tenantAllowCmd, tenantRevokeCmd)
	rootCmd.AddCommand(runCmd, cleanupCmd, executionsCmd, catalogCmd, scheduleCmd, tenantCmd, sealCmd, serveCmd, versionCmd)

	if err := rootCmd.ExecuteContext(rootContext()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
