package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/wxrelay/wxrelay/internal/config"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.Default()
			endpoint := cfg.API.Endpoint
			model := cfg.API.Model
			keyEnv := cfg.API.APIKeyEnv
			adapterURL := cfg.Adapter.BaseURL
			selfID := ""
			persona := cfg.Persona.GlobalPrompt

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().Title("Chat completions URL").
						Description("Any OpenAI-compatible endpoint works").
						Value(&endpoint),
					huh.NewInput().Title("Model").Value(&model),
					huh.NewInput().Title("API key environment variable").
						Description("The key itself is never written to the config file").
						Value(&keyEnv),
				),
				huh.NewGroup(
					huh.NewInput().Title("wxauto bridge URL").Value(&adapterURL),
					huh.NewInput().Title("Own WeChat id").
						Description("Messages from this id are ignored; leave empty to skip").
						Value(&selfID),
					huh.NewInput().Title("System prompt").Value(&persona),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			cfg.API.Endpoint = endpoint
			cfg.API.Model = model
			cfg.API.APIKeyEnv = keyEnv
			cfg.Adapter.BaseURL = adapterURL
			cfg.SelfUserID = selfID
			cfg.Persona.GlobalPrompt = persona

			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			if os.Getenv(keyEnv) == "" {
				fmt.Printf("note: %s is not set; export it before running wxrelay\n", keyEnv)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
