package main

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/helpdesk/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "helpdesk",
	Short: "helpdesk is a terminal client for the company helpdesk assistant",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		if err := clay.InitLogger(); err != nil {
			return err
		}
		return viper.BindPFlags(cmd.Flags())
	},
	SilenceUsage: true,
}

func main() {
	config.AddFlags(rootCmd.PersistentFlags())

	err := clay.InitViper("helpdesk", rootCmd)
	cobra.CheckErr(err)
	err = clay.InitLogger()
	cobra.CheckErr(err)

	chatCmd := newChatCommand()
	rootCmd.AddCommand(chatCmd, newAskCommand(), newHistoryCommand())
	// plain `helpdesk` opens the chat UI
	rootCmd.RunE = chatCmd.RunE

	cobra.CheckErr(rootCmd.Execute())
}
