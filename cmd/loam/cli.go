package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/loam/internal/config"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/index"
	"github.com/hpungsan/loam/internal/ops"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, idx *index.Manager) *cli.App {
	app := &cli.App{
		Name:    "loam",
		Usage:   "Workspace file lifecycle and archive engine",
		Version: Version,
		Commands: []*cli.Command{
			registerCmd(db),
			touchCmd(db),
			statusCmd(db, cfg),
			listCmd(db),
			archiveCmd(db, idx),
			sweepCmd(db, cfg, idx),
			searchCmd(idx),
			getCmd(db),
			purgeCmd(db, idx),
			consolidateCmd(db, cfg),
			sessionCmd(db),
			insightsCmd(db),
			reindexCmd(db, idx),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// registerCmd creates the register command.
func registerCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Start lifecycle tracking for a file (reads content from stdin)",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "minimal", Usage: "Generation mode: minimal|professional|research"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Owning session ID"},
			&cli.IntFlag{Name: "retain-days", Usage: "Explicit retention hint in days"},
			&cli.StringFlag{Name: "stakeholders", Usage: "Comma-separated stakeholder signals"},
			&cli.StringFlag{Name: "frameworks", Usage: "Comma-separated framework signals"},
			&cli.BoolFlag{Name: "update", Aliases: []string{"u"}, Usage: "Replace content of an already-tracked path"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("path argument is required"))
			}
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
			}

			content, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if content == "" {
				return outputError(errors.NewInvalidRequest("content is required"))
			}

			input := ops.RegisterInput{
				Path:       c.Args().First(),
				Content:    content,
				Mode:       c.String("mode"),
				Tags:       splitList(c.String("tags")),
				SessionID:  c.String("session"),
				RetainDays: c.Int("retain-days"),
				Update:     c.Bool("update"),
			}
			input.Stakeholders = splitList(c.String("stakeholders"))
			input.Frameworks = splitList(c.String("frameworks"))

			output, err := ops.Register(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// touchCmd creates the touch command.
func touchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "touch",
		Usage:     "Record an access and reset the aging clock",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("path argument is required"))
			}

			output, err := ops.Touch(c.Context, db, ops.TouchInput{Path: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a tracked file's state, score, and next transition estimate",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "content", Usage: "Include the stored content snapshot"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("path argument is required"))
			}

			output, err := ops.Status(c.Context, db, cfg, ops.StatusInput{
				Path:           c.Args().First(),
				IncludeContent: c.Bool("content"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List tracked files, newest modification first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state", Aliases: []string{"s"}, Usage: "Filter by state: active|aging|archive_eligible"},
			&cli.StringFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Filter by tag"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			input := ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			}

			if state := c.String("state"); state != "" {
				input.State = &state
			}
			if tag := c.String("tag"); tag != "" {
				input.Tag = &tag
			}

			output, err := ops.List(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// archiveCmd creates the archive command.
func archiveCmd(db *sql.DB, idx *index.Manager) *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Archive a tracked file immediately",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("path argument is required"))
			}

			output, err := ops.Archive(c.Context, db, idx, ops.ArchiveInput{Path: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// sweepCmd creates the sweep command.
func sweepCmd(db *sql.DB, cfg *config.Config, idx *index.Manager) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Advance lifecycle states for files past their aging thresholds",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "archive", Usage: "Archive every archive-eligible file instead"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("archive") {
				output, err := ops.ArchiveSweep(c.Context, db, idx)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			output, err := ops.Sweep(c.Context, db, cfg)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(idx *index.Manager) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search over archived files",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category: general|professional|research"},
			&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Filter by tag (repeatable; all must match)"},
			&cli.Int64Flag{Name: "from", Usage: "Filter: archived at or after this unix timestamp"},
			&cli.Int64Flag{Name: "to", Usage: "Filter: archived at or before this unix timestamp"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("query argument is required"))
			}

			input := ops.SearchInput{
				Query:  strings.Join(c.Args().Slice(), " "),
				Tags:   c.StringSlice("tag"),
				From:   c.Int64("from"),
				To:     c.Int64("to"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			}

			if category := c.String("category"); category != "" {
				input.Category = &category
			}

			output, err := ops.Search(c.Context, idx, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// getCmd creates the get command.
func getCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Retrieve an archived record by ID",
		ArgsUsage: "<archive-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "content", Usage: "Include the archived content"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("archive-id argument is required"))
			}

			output, err := ops.GetArchive(c.Context, db, ops.GetArchiveInput{
				ArchiveID:      c.Args().First(),
				IncludeContent: c.Bool("content"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(db *sql.DB, idx *index.Manager) *cli.Command {
	return &cli.Command{
		Name:      "purge",
		Usage:     "Permanently delete an archived record, leaving an audit entry",
		ArgsUsage: "<archive-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reason", Aliases: []string{"r"}, Required: true, Usage: "Reason recorded in the audit log"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("archive-id argument is required"))
			}

			output, err := ops.PurgeArchive(c.Context, db, idx, ops.PurgeArchiveInput{
				ArchiveID: c.Args().First(),
				Reason:    c.String("reason"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// consolidateCmd creates the consolidate command with scan/apply subcommands.
func consolidateCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "consolidate",
		Usage: "Find and apply merge opportunities among active files",
		Subcommands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "Scan active files for merge opportunities (advisory only)",
				Action: func(c *cli.Context) error {
					output, err := ops.IdentifyConsolidations(c.Context, db, cfg)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "apply",
				Usage: "Merge source files into one destination atomically",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "sources", Aliases: []string{"s"}, Required: true, Usage: "Comma-separated source paths (at least 2)"},
					&cli.StringFlag{Name: "destination", Aliases: []string{"d"}, Required: true, Usage: "Destination path for the merged file"},
					&cli.StringFlag{Name: "kind", Usage: "Opportunity kind for the audit log"},
					&cli.Float64Flag{Name: "confidence", Usage: "Opportunity confidence for the audit log"},
				},
				Action: func(c *cli.Context) error {
					input := ops.ApplyConsolidationInput{
						Sources:     splitList(c.String("sources")),
						Destination: c.String("destination"),
						Kind:        c.String("kind"),
						Confidence:  c.Float64("confidence"),
					}

					output, err := ops.ApplyConsolidation(c.Context, db, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// sessionCmd creates the session command.
func sessionCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Append a work session to the history log",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Required: true, Usage: "Unique session identifier"},
			&cli.StringFlag{Name: "files", Usage: "Comma-separated paths touched this session"},
			&cli.StringFlag{Name: "outcome", Required: true, Usage: "Session outcome, e.g. success, abandoned"},
			&cli.IntFlag{Name: "duration", Required: true, Usage: "Session duration in minutes"},
		},
		Action: func(c *cli.Context) error {
			input := ops.RecordSessionInput{
				SessionID:       c.String("id"),
				Files:           splitList(c.String("files")),
				Outcome:         c.String("outcome"),
				DurationMinutes: c.Int("duration"),
			}

			output, err := ops.RecordSession(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// insightsCmd creates the insights command with compute/show subcommands.
func insightsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "insights",
		Usage: "Compute and inspect patterns from the session history",
		Subcommands: []*cli.Command{
			{
				Name:  "compute",
				Usage: "Run the pattern recognizer and persist a new insight generation",
				Action: func(c *cli.Context) error {
					output, err := ops.ComputeInsights(c.Context, db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "show",
				Usage: "Show the latest insight generation and derived tuning",
				Action: func(c *cli.Context) error {
					output, err := ops.GetInsights(c.Context, db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// reindexCmd creates the reindex command.
func reindexCmd(db *sql.DB, idx *index.Manager) *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Rebuild the search index from the archive store",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "retry", Usage: "Only retry records whose initial indexing failed"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("retry") {
				output, err := ops.RetryIndexing(c.Context, db, idx)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			output, err := ops.Reindex(c.Context, idx)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if loamErr, ok := err.(*errors.LoamError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", loamErr.Code, loamErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// splitList splits a comma-separated string into trimmed non-empty parts.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
