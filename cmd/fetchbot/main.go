package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jgivc/fetchbot/internal/app"
)

var cfgFileName string

var rootCmd = &cobra.Command{
	Use:           "fetchbot",
	Short:         "Chat bot that downloads media with yt-dlp",
	Long:          "Downloads media on request and sends it to the chat, or publishes a temporary link for large files.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfgFileName)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGUSR2)
		defer signal.Stop(c)

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-c:
					a.Dump()
				}
			}
		}()

		if err := a.Run(ctx); err != nil {
			return err
		}

		fmt.Println("done")

		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the published links registry as YAML",
	Long:  "Reads the redis-backed registry of published links and writes a YAML snapshot to stdout.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.DumpRegistry(cfgFileName, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFileName, "config", "c", "config.yml", "Path to config file")
	rootCmd.AddCommand(dumpCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
