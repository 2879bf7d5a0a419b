package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// sessionLabel names the unscoped view
func sessionLabel(sessionID string) string {
	if sessionID == "" {
		return "(all sessions)"
	}
	return sessionID
}
