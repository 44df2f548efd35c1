package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Operator tooling for the agency reporting portal",
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("tz", "", "Portal timezone (defaults to PORTAL_TIMEZONE)")
	root.PersistentFlags().StringP("output", "o", "table", "Output format (table, json)")
	root.AddCommand(occurrencesCmd(), reconcileCmd(), shadowCmd())
	return root
}

// viperForCmd binds a command's flags and PORTAL_* environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}
