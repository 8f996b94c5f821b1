package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/iksnae/analyst-stream/internal"
	"github.com/spf13/cobra"
)

var deleteForce bool

var renameCmd = &cobra.Command{
	Use:   "rename <conversation-id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.FindConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := store.RenameConversation(cmd.Context(), rec.ID, args[1]); err != nil {
			return err
		}
		internal.PrintSuccess(fmt.Sprintf("Renamed %s to %q", rec.ID, strings.TrimSpace(args[1])))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and its events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.FindConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleteForce && !confirm(cmd, fmt.Sprintf("Delete %s (%q, %d events)? [y/N] ", rec.ID, rec.Title, rec.EventCount)) {
			internal.PrintInfo("Aborted")
			return nil
		}
		if err := store.DeleteConversation(cmd.Context(), rec.ID); err != nil {
			return err
		}
		internal.PrintSuccess("Deleted " + rec.ID)
		return nil
	},
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func init() {
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Delete without asking")
}
