package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexushub/portal/internal/config"
	"github.com/nexushub/portal/internal/directory"
	internalhttp "github.com/nexushub/portal/internal/http"
	"github.com/nexushub/portal/internal/orchestrator"
)

const cliTimeout = 30 * time.Second

// orchestratorClient builds a client for one-shot commands; url overrides ORCHESTRATOR_URL.
func orchestratorClient(url string) *orchestrator.Client {
	if url == "" {
		url = config.Load().OrchestratorURL
	}
	return orchestrator.NewClient(url, cliTimeout)
}

func newAgentsCmd() *cobra.Command {
	var orchURL, category string

	cmd := &cobra.Command{
		Use:   "agents [query]",
		Short: "Search the agent directory",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := orchestratorClient(orchURL)
			all, err := client.ListAgents(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s", orchestrator.ErrorMessage(err))
			}

			agents := directory.Search(all, directory.Filter{
				Query:    strings.Join(args, " "),
				Category: category,
			})
			out := cmd.OutOrStdout()
			if len(agents) == 0 {
				fmt.Fprintln(out, styleGray.Render("No agents found matching your criteria."))
				return nil
			}
			for _, a := range agents {
				fmt.Fprintln(out, renderAgent(a))
			}
			fmt.Fprintln(out, styleGray.Render(fmt.Sprintf("%d of %d agents · categories: %s",
				len(agents), len(all), strings.Join(directory.Categories(all), ", "))))
			return nil
		},
	}
	cmd.Flags().StringVar(&orchURL, "orchestrator", "", "orchestrator base URL (default $ORCHESTRATOR_URL)")
	cmd.Flags().StringVar(&category, "category", "", "only show agents in this category")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var orchURL, developer string
	var form internalhttp.RegisterAgentForm

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent with the orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := form.Validate(); err != nil {
				return err
			}
			if developer == "" {
				developer = "anonymous"
			}

			client := orchestratorClient(orchURL)
			req := form.Request(developer)
			if _, err := client.RegisterAgent(cmd.Context(), req); err != nil {
				return fmt.Errorf("%s", orchestrator.ErrorMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), styleGreen.Render("Registered "+req.ID+" (version "+req.Version+")"))
			return nil
		},
	}
	cmd.Flags().StringVar(&orchURL, "orchestrator", "", "orchestrator base URL (default $ORCHESTRATOR_URL)")
	cmd.Flags().StringVar(&form.ID, "id", "", "agent id")
	cmd.Flags().StringVar(&form.Name, "name", "", "display name")
	cmd.Flags().StringVar(&form.Description, "description", "", "what the agent does")
	cmd.Flags().StringVar(&form.Endpoint, "endpoint", "", "http(s) URL the orchestrator calls")
	cmd.Flags().StringVar(&form.Category, "category", "", "directory category")
	cmd.Flags().StringVar(&developer, "developer", "", "developer principal (default anonymous)")
	return cmd
}
