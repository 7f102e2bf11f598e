package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wxrelay/wxrelay/internal/config"
	"github.com/wxrelay/wxrelay/internal/providers"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check config and API connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			cfg, err := config.Load(path)
			if err != nil {
				fmt.Printf("config: FAIL (%v)\n", err)
				return err
			}
			fmt.Printf("config: OK (%s)\n", path)
			fmt.Printf("model: %s\n", cfg.API.Model)

			if key := os.Getenv(cfg.API.APIKeyEnv); key == "" {
				fmt.Printf("api key: FAIL (%s is empty)\n", cfg.API.APIKeyEnv)
			} else {
				fmt.Printf("api key: OK (via %s)\n", cfg.API.APIKeyEnv)
			}

			client := providers.NewOpenAIClient(providers.OpenAIConfig{
				Endpoint:  cfg.API.Endpoint,
				APIKeyEnv: cfg.API.APIKeyEnv,
				Model:     cfg.API.Model,
				Timeout:   10 * time.Second,
			})
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			n, err := client.TestConnection(ctx)
			if err != nil {
				fmt.Printf("endpoint: FAIL (%v)\n", err)
				return err
			}
			fmt.Printf("endpoint: OK (%d models available)\n", n)
			return nil
		},
	}
}
