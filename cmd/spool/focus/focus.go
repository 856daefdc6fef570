// Package focuscmder provides the focus subcommand for pinning the subject
// and log the next session resumes against.
package focuscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/spool/pkg/dotdir"
	"github.com/papercomputeco/spool/pkg/logger"
	"github.com/papercomputeco/spool/pkg/utils"
)

type focusCommander struct {
	subject   string
	logName   string
	reference string
	api       string
	debug     bool

	logger *slog.Logger
}

// logResponse mirrors the API's entry JSON for deserialization.
type logResponse struct {
	Name     string `json:"name"`
	Messages []struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"messages"`
	Hydrated bool `json:"hydrated"`
}

const focusLongDesc string = `Pin the subject and log the next session resumes against.

Verifies the log against the API server and saves the focus state in the
.spool/ directory. Subsequent sessions load the same subject and re-root
their trie view on the focused log.

If no arguments are provided, clears the focus state so the next session
starts fresh.

Examples:
  spool focus alice chat-042              Focus a log for subject alice
  spool focus alice chat-042 --reference chat-001
  spool focus                             Clear focus state`

const focusShortDesc string = "Pin the focused subject and log"

func NewFocusCmd() *cobra.Command {
	cmder := &focusCommander{}

	cmd := &cobra.Command{
		Use:   "focus [subject] [log]",
		Short: focusShortDesc,
		Long:  focusLongDesc,
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				cmder.subject = args[0]
			}
			if len(args) > 1 {
				cmder.logName = args[1]
			}

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.api, "api", "a", "http://localhost:8081", "Spool API server address")
	cmd.Flags().StringVar(&cmder.reference, "reference", "", "Reference log for branch detection")

	return cmd
}

func (c *focusCommander) run(ctx context.Context) error {
	dotdirManager := dotdir.NewManager()
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))

	// No subject means clear the focus state.
	if c.subject == "" {
		if err := dotdirManager.ClearFocus(""); err != nil {
			return fmt.Errorf("clearing focus: %w", err)
		}
		fmt.Println("Focus cleared. Next session starts fresh.")
		return nil
	}

	state := &dotdir.FocusState{
		Subject:   c.subject,
		LogName:   c.logName,
		Reference: c.reference,
	}

	if c.logName != "" {
		c.logger.Debug("verifying log against API",
			"subject", c.subject,
			"log", c.logName,
			"api", c.api,
		)

		entry, err := c.fetchLog(ctx, c.logName)
		if err != nil {
			return fmt.Errorf("verifying log: %w", err)
		}

		if err := dotdirManager.SaveFocus(state, ""); err != nil {
			return fmt.Errorf("saving focus: %w", err)
		}

		fmt.Printf("Focused %s (%d messages)\n", entry.Name, len(entry.Messages))
		for _, msg := range entry.Messages {
			preview := utils.Truncate(msg.Text, 60)
			fmt.Printf("  [%s] %s\n", msg.Role, preview)
		}
		return nil
	}

	if err := dotdirManager.SaveFocus(state, ""); err != nil {
		return fmt.Errorf("saving focus: %w", err)
	}

	fmt.Printf("Focused subject %s\n", c.subject)
	return nil
}

// fetchLog calls the API to resolve one log by name.
func (c *focusCommander) fetchLog(ctx context.Context, name string) (*logResponse, error) {
	url := fmt.Sprintf("%s/logs/%s", c.api, name)

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting log from API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading API response: %w", err)
	}

	var entry logResponse
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("parsing API response: %w", err)
	}

	return &entry, nil
}
