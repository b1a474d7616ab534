package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftchat/drift/internal/topics"
)

// topicsCmd represents the topics command
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Inspect and validate room channel names",
	Long: `The topics command shows how raw room identifiers map onto broadcast
topics and checks whether a channel name is well formed.

Examples:
  # Show the topic a room ID maps to
  drift-cli topics room "dinner with friends!"

  # Validate a channel name a client is about to subscribe to
  drift-cli topics validate chat.room.dinner-abc1`,
}

var topicsRoomCmd = &cobra.Command{
	Use:   "room <room-id>",
	Short: "Print the broadcast topic for a room identifier",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(topics.Room(args[0]))
	},
}

var topicsValidateCmd = &cobra.Command{
	Use:   "validate <channel-name>",
	Short: "Check that a channel name is well formed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := topics.Validate(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "invalid channel name: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s is valid\n", args[0])
	},
}

func init() {
	topicsCmd.AddCommand(topicsRoomCmd)
	topicsCmd.AddCommand(topicsValidateCmd)
	rootCmd.AddCommand(topicsCmd)
}
