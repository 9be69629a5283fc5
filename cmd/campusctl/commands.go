package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/campus-connect-api/internal/config"
	"github.com/noah-isme/campus-connect-api/internal/database"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
	"github.com/noah-isme/campus-connect-api/internal/service"
)

func newLogger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the relational schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.ConnectPostgres(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			logger := newLogger(cmd)
			logger.Info().Int("models", len(models.RelationalModels())).Msg("schema migrated")
			return nil
		},
	}
	cmd.Flags().Bool("verbose", false, "Enable debug logging")
	return cmd
}

func reconcileGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile-groups",
		Short: "Rebuild the real-time group membership mirror from user rows",
		Long: `Rebuild the real-time group membership mirror from user rows.

The relational group lists are authoritative. Every catalog group's member
set in Redis is replaced with the users whose rows list that group.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cmd)

			db, err := database.ConnectPostgres(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			membership := service.NewMembershipService(
				repository.NewUserRepository(db),
				repository.NewMembershipMirror(redisClient),
				models.DefaultGroupCatalog(),
				logger,
			)

			report, err := membership.Reconcile(ctx)
			if err != nil {
				return fmt.Errorf("reconcile memberships: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reconciled %d groups from %d users\n", report.Groups, report.Users)
			return nil
		},
	}
	cmd.Flags().Bool("verbose", false, "Enable debug logging")
	return cmd
}

func sweepExpiredCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep-expired",
		Short: "Delete disappearing messages whose expiry has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cmd)

			ctx, cancel := commandContext(cmd)
			defer cancel()

			redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			bus := realtime.NewRedisBus(redisClient, cfg.ChannelBase, logger)
			sweeper := service.NewExpirySweeper(repository.NewChatStore(redisClient), bus, cfg.ExpirySweepInterval, logger)

			removed, err := sweeper.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep expired messages: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired messages\n", removed)
			return nil
		},
	}
	cmd.Flags().Bool("verbose", false, "Enable debug logging")
	return cmd
}

func groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the group catalog shipped with the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, group := range models.DefaultGroupCatalog().All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", group.ID, group.Name)
			}
			return nil
		},
	}
}
