package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/observability"
)

// NewQuestionsCmd manages the question bank of a persistent store.
func NewQuestionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage the question bank",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add \"Question?;Answer\"",
		Short: "Add a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), *configPath, func(ctx context.Context, be *backend, c *app.Catalog) error {
				text, answer, err := app.ParseQuestionLine(strings.Join(args, " "))
				if err != nil {
					return err
				}
				q, err := c.AddQuestion(ctx, text, answer)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added question %d\n", q.ID)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a question by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid question id %q", args[0])
			}
			return withCatalog(cmd.Context(), *configPath, func(ctx context.Context, be *backend, c *app.Catalog) error {
				if err := c.DeleteQuestion(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted question %d\n", id)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every question with its answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), *configPath, func(ctx context.Context, be *backend, c *app.Catalog) error {
				questions, err := c.ListQuestions(ctx)
				if err != nil {
					return err
				}
				printQuestions(cmd.OutOrStdout(), questions)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Insert the sample questions into an empty bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), *configPath, func(ctx context.Context, be *backend, c *app.Catalog) error {
				n, err := be.seed(ctx, domain.SampleQuestions())
				if err != nil {
					return err
				}
				if n > 0 && be.cache != nil {
					if err := be.cache.Invalidate(ctx); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d questions\n", n)
				return nil
			})
		},
	})
	return cmd
}

func withCatalog(ctx context.Context, configPath string, fn func(context.Context, *backend, *app.Catalog) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver == config.DriverMemory {
		return fmt.Errorf("storage driver %q keeps nothing between runs; configure sqlite or postgres", cfg.Storage.Driver)
	}
	// command output goes to stdout, so only errors are logged
	log := observability.NewLogger("error", cfg.Log.Format)
	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.Close()
	return fn(ctx, be, be.catalog(log.With("component", "catalog")))
}

func printQuestions(w io.Writer, questions []domain.Question) {
	if len(questions) == 0 {
		fmt.Fprintln(w, "no questions")
		return
	}
	for _, q := range questions {
		fmt.Fprintf(w, "%d\t%s\t%s\n", q.ID, q.Text, q.Answer)
	}
}
