// Package main is the entry point for the plcsnmp bridge.
//
// Usage:
//
//	plcsnmp                          # controller at 127.0.0.1:8851
//	plcsnmp 10.0.0.5 851             # explicit controller endpoint
//	plcsnmp --config plcsnmp.yaml    # file settings, env still applies
//	plcsnmp config example           # print an example configuration
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "plcsnmp [controller-host] [controller-port]",
	Short: "Bridge SNMP values into controller symbols",
	Long: `plcsnmp connects to an automation controller, discovers symbols annotated
with snmp_oid and snmp_address, and while the controller is running polls
each OID at its interval and writes the value into the symbol.

Settings are resolved as: positional arguments, then PLCSNMP_* environment
variables, then the config file, then built-in defaults.`,
	Args:         cobra.MaximumNArgs(2),
	SilenceUsage: true,
	Version:      version,
	RunE:         runBridge,
}

func init() {
	rootCmd.Flags().StringP("config", "c", "plcsnmp.yaml", "path to config file (optional)")
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
