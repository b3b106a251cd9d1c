package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check if the portal server is ready",
		Long:  "Query the readiness endpoint of a running server and report its checks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(url)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server base URL (default derived from server.host and server.port)")

	return cmd
}

func runStatus(baseURL string) error {
	if baseURL == "" {
		host := v.GetString("server.host")
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		port := v.GetInt("server.port")
		if port == 0 {
			port = 8080
		}
		baseURL = fmt.Sprintf("http://%s:%d", host, port)
	}

	readyAddr := baseURL + "/readyz"
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(readyAddr)
	if err != nil {
		return fmt.Errorf("server is not responding at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode readiness response: %w", err)
	}

	fmt.Printf("Server at %s: %s (%d)\n", baseURL, body.Status, resp.StatusCode)
	for name, result := range body.Checks {
		fmt.Printf("  %-10s %s\n", name+":", result)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server is not ready")
	}
	return nil
}
