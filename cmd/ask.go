package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adalundhe/relay/core/dispatch"
	"github.com/spf13/cobra"
)

var (
	askRecipient string
	askTimeout   time.Duration
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [text...]",
	Short: "Process a single consultation request",
	Long: `Dispatch one user message through the full engine and print the
delivered result.

Examples:
  relay ask "What is the current GPU pricing?"
  relay ask --json "Compare plan A and plan B"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askRecipient, "recipient", "cli", "recipient id for the result delivery")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", time.Minute, "how long to wait for the result")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw result payload as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	application, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer application.close()

	deliveries, cancelSub := application.transport.Subscribe(askRecipient)
	defer cancelSub()

	application.engine.Start(1)

	text := strings.Join(args, " ")
	item, err := application.dispatcher.Dispatch(
		cmd.Context(), askRecipient, dispatch.TypeUserMessage,
		map[string]any{"text": text},
	)
	if err != nil {
		return err
	}
	application.logger.Info("request dispatched", "item", item.ID)

	select {
	case delivery := <-deliveries:
		return printResult(delivery.Payload)
	case <-time.After(askTimeout):
		return fmt.Errorf("no result within %s", askTimeout)
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
}

func printResult(payload map[string]any) error {
	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	fmt.Printf("intent:     %v (confidence %v)\n", payload["intent"], payload["confidence"])
	fmt.Printf("status:     %v\n", payload["status"])
	if escalated, ok := payload["escalated"].(bool); ok && escalated {
		fmt.Printf("escalated:  quality floor %v\n", payload["quality_floor"])
	}
	if steps, ok := payload["steps"].([]map[string]any); ok {
		fmt.Println("steps:")
		for _, step := range steps {
			marker := "done"
			if pending, _ := step["pending"].(bool); pending {
				marker = "pending"
			}
			fmt.Printf("  - %v/%v (%s)\n", step["agent"], step["action"], marker)
		}
	}
	if lines, ok := payload["trace"].([]string); ok && len(lines) > 0 {
		fmt.Println("trace:")
		for _, line := range lines {
			fmt.Println("  " + line)
		}
	}
	return nil
}
