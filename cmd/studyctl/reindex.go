package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FarisLab/StudySync/internal/ownership"
	"github.com/FarisLab/StudySync/internal/search"
	"github.com/FarisLab/StudySync/internal/store"
)

var (
	reindexOwners []string
	reindexKind   string
)

var errEngineUnavailable = errors.New("search engine unavailable")

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Push an owner's folders, spaces and topics to Meilisearch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := search.ParseKind(reindexKind)
		if !ok {
			return fmt.Errorf("unknown kind %q", reindexKind)
		}
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if strings.TrimSpace(cfg.MeiliURL) == "" {
			return fmt.Errorf("STUDYSYNC_MEILI_URL is not set")
		}
		ctx := cmd.Context()
		gateway, err := openGateway(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = gateway.Close(ctx) }()

		engine := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer engine.Close()

		svc := search.NewService(engine, search.FallbackFor(gateway), log)
		return runReindex(ctx, gateway, svc, reindexOwners, kind, cmd.OutOrStdout())
	},
}

func init() {
	reindexCmd.Flags().StringSliceVar(&reindexOwners, "owner", nil, "Owner user id to reindex (repeatable)")
	reindexCmd.Flags().StringVar(&reindexKind, "kind", "", "Restrict to folder, space or topic")
	_ = reindexCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(ctx context.Context, gateway store.Gateway, svc *search.Service, owners []string, kind search.Kind, out io.Writer) error {
	for _, owner := range owners {
		owner = strings.TrimSpace(owner)
		if owner == "" {
			continue
		}
		records, err := search.LoadRecords(ctx, gateway, ownership.UserID(owner), kind)
		if err != nil {
			return fmt.Errorf("load records for %s: %w", owner, err)
		}
		if len(records) == 0 {
			_, _ = fmt.Fprintf(out, "%s: nothing to index\n", owner)
			continue
		}
		ready, err := svc.Reindex(records)
		if !ready {
			return errEngineUnavailable
		}
		if err != nil {
			return fmt.Errorf("index records for %s: %w", owner, err)
		}
		_, _ = fmt.Fprintf(out, "%s: indexed %d records\n", owner, len(records))
	}
	return nil
}
