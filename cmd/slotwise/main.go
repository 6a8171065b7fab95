package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "slotwise",
	Short: "Appointment slot recommendations with reminders",
	Long: `slotwise ranks a primary user's open slots for a secondary user,
books appointments and sends periodic rebooking reminders.

Run "slotwise start" to launch the server; the other commands talk to it
over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(reminderCmd)
	rootCmd.AddCommand(availabilityCmd)
	rootCmd.AddCommand(bookingsCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
