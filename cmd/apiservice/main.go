package main

import (
	"os"
	"runtime/debug"

	"github.com/brizzai/oidc-sample/internal/apiservice"
	"github.com/brizzai/oidc-sample/internal/config"
	"github.com/brizzai/oidc-sample/internal/logger"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

func main() {
	Execute()
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "apiservice",
	Short: "OIDC sample API service",
	Long: `The API service accepts bearer access tokens issued by an OpenID Connect
provider and answers POST /admin with the caller's name.`,
	SilenceUsage: true,
	RunE:         run,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAPIService(cmd.Flags())
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo(apiservice.ServiceName))
			os.Exit(0)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitAPIServiceFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")
	rootCmd.AddCommand(configCmd)
}

func run(cmd *cobra.Command, args []string) error {
	defer func() {
		if r := recover(); r != nil {
			pterm.Error.Printf("\nCaught panic: %v\n", r)
			pterm.Error.Printf("%s\n", debug.Stack())
			os.Exit(2)
		}
	}()

	cfg, err := config.LoadAPIService(cmd.Flags())
	if err != nil {
		return err
	}
	if err := logger.InitLogger(apiservice.ServiceName, &cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	app := fx.New(
		fx.Supply(cfg),
		fx.WithLogger(logger.FxLogger),
		apiservice.Module,
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}
