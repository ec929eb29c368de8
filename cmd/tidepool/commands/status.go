package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pventura/tidepool/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running tidepool server",
	Long: `Query the readiness probe of a running tidepool server and render the
per-resource health as a table.

Exits non-zero when the server is unreachable or not ready.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.Addr())
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("server unreachable at %s: %w", url, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Status string `json:"status"`
		Data   struct {
			Resources []struct {
				Name    string `json:"name"`
				Status  string `json:"status"`
				Error   string `json:"error"`
				Latency string `json:"latency"`
			} `json:"resources"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Resource", "Status", "Latency", "Error"})
	for _, res := range payload.Data.Resources {
		table.Append([]string{res.Name, res.Status, res.Latency, res.Error})
	}
	table.Render()

	fmt.Printf("\nOverall: %s\n", payload.Status)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server is not ready (HTTP %d)", resp.StatusCode)
	}
	return nil
}
