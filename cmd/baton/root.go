package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagMode   string
	flagDir    string
	flagConfig string
	flagLang   string
)

var validModes = map[string]bool{
	"auto": true, "cli": true,
	"feishu": true, "telegram": true, "whatsapp": true, "slack": true, "discord": true,
}

var rootCmd = &cobra.Command{
	Use:   "baton [mode] [workdir]",
	Short: "baton bridges chat transports to ACP coding agents",
	Long: `baton spawns a coding agent that speaks the Agent Client Protocol and
bridges it to a chat transport (or a local terminal) through a shared
session manager, task queue, and command dispatcher.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := flagMode
		dir := flagDir
		if len(args) > 0 {
			mode = args[0]
		}
		if len(args) > 1 {
			dir = args[1]
		}
		if mode == "" {
			mode = "auto"
		}
		if !validModes[mode] {
			return fmt.Errorf("unknown mode %q; valid modes: auto, cli, feishu, telegram, whatsapp, slack, discord", mode)
		}
		return run(runOptions{Mode: mode, Dir: dir, ConfigPath: flagConfig, Lang: flagLang})
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagMode, "mode", "", "transport mode: auto, cli, feishu, telegram, whatsapp, slack, discord")
	rootCmd.Flags().StringVar(&flagDir, "dir", "", "project working directory (default: current directory)")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "explicit config file path (default: search parent directories)")
	rootCmd.Flags().StringVar(&flagLang, "lang", "", "interface language: en or zh-CN")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
