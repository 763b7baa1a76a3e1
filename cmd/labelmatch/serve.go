package main

import (
	"github.com/spf13/cobra"

	"yashubustudio/labelmatch/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve embedding requests on stdin/stdout",
	Long: `Read newline-delimited JSON requests {"id", "text"} from stdin and answer each
with {"success", "id", "embedding", "dimensions", "model"} or {"success": false, "id", "error"}.
A request whose text is an array is answered with an array of such responses.
The embedding backend is loaded on the first request.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := newProvider(cfg.Embedder, logger)
		defer provider.Close()
		server := rpc.NewServer(provider, cfg.Server.Workers, logger)
		return server.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}
