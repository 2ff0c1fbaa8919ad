package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/sightline/internal/errors"
	"github.com/hpungsan/sightline/internal/fixcache"
	"github.com/hpungsan/sightline/internal/generate"
	"github.com/hpungsan/sightline/internal/ops"
)

// maxStdinBytes bounds signal batches piped to "signals import".
const maxStdinBytes = 10 << 20

// appEnv carries what commands need at run time. It is nil for --help and
// --version, which never reach a command action.
type appEnv struct {
	deps  *ops.Deps
	cache *fixcache.Cache
	gen   generate.Generator
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "sightline",
		Usage:   "Store health scoring and governed drafts",
		Version: Version,
		Commands: []*cli.Command{
			signalsCmd(env),
			applicabilityCmd(env),
			memberCmd(env),
			liveCmd(env),
			scoreCmd(env),
			issuesCmd(env),
			draftCmd(env),
			approvalCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// Shared flags.

func projectFlag() cli.Flag {
	return &cli.StringFlag{Name: "project", Aliases: []string{"p"}, Required: true, Usage: "Project id"}
}

func entityFlag() cli.Flag {
	return &cli.StringFlag{Name: "entity", Aliases: []string{"e"}, Usage: "Entity as kind:id (defaults to the project entity)"}
}

func targetFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		projectFlag(),
		entityFlag(),
		&cli.StringFlag{Name: "field", Aliases: []string{"f"}, Required: true, Usage: "Field group (e.g. seo_title)"},
	}
	return append(flags, extra...)
}

func actorFlag() cli.Flag {
	return &cli.StringFlag{Name: "actor", Aliases: []string{"a"}, Required: true, Usage: "Acting user id"}
}

func expectedVersionFlag() cli.Flag {
	return &cli.Int64Flag{Name: "expected-version", Usage: "Draft version the change is based on (0 = skip check)"}
}

func target(c *cli.Context) ops.Target {
	return ops.Target{
		ProjectID:  c.String("project"),
		Entity:     c.String("entity"),
		FieldGroup: c.String("field"),
	}
}

// signalsCmd creates the signals command.
func signalsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "signals",
		Usage: "Manage project signals",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Import signals (reads a JSON array of {entity, key, value} from stdin)",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.BoolFlag{Name: "replace", Usage: "Replace each listed entity's signals instead of merging"},
				},
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("signals must be piped via stdin"))
					}
					data, err := readStdin(maxStdinBytes)
					if err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}
					var signals []ops.SignalInput
					if err := json.Unmarshal([]byte(data), &signals); err != nil {
						return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid signals JSON: %v", err)))
					}

					result, err := ops.ImportSignals(c.Context, env.deps, ops.ImportSignalsInput{
						ProjectID: c.String("project"),
						Signals:   signals,
						Replace:   c.Bool("replace"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
		},
	}
}

// applicabilityCmd creates the applicability command.
func applicabilityCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "applicability",
		Usage: "Declare whether a pillar applies to a project",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Set a pillar's applicability",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{Name: "pillar", Required: true, Usage: "Pillar id"},
					&cli.StringFlag{Name: "status", Required: true, Usage: "applicable|not_applicable|unknown"},
					&cli.StringFlag{Name: "reasons", Usage: "Comma-separated reason codes"},
				},
				Action: func(c *cli.Context) error {
					result, err := ops.SetApplicability(c.Context, env.deps, ops.SetApplicabilityInput{
						ProjectID: c.String("project"),
						Pillar:    c.String("pillar"),
						Status:    c.String("status"),
						Reasons:   parseList(c.String("reasons")),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
		},
	}
}

// memberCmd creates the member command.
func memberCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "member",
		Usage: "Manage project roles",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Assign a role (the first member must be OWNER)",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{Name: "actor", Aliases: []string{"a"}, Usage: "User making the change"},
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true, Usage: "User whose role is set"},
					&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Required: true, Usage: "OWNER|EDITOR|VIEWER"},
				},
				Action: func(c *cli.Context) error {
					result, err := ops.SetMember(c.Context, env.deps, ops.SetMemberInput{
						ProjectID: c.String("project"),
						ActorID:   c.String("actor"),
						UserID:    c.String("user"),
						Role:      c.String("role"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
		},
	}
}

// liveCmd creates the live command.
func liveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "live",
		Usage: "Record live catalog values",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Record the current live value of a field group",
				Flags: targetFlags(
					&cli.StringFlag{Name: "value", Usage: "Live value"},
				),
				Action: func(c *cli.Context) error {
					result, err := ops.SetLiveField(c.Context, env.deps, ops.SetLiveFieldInput{
						Target: target(c),
						Value:  c.String("value"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
		},
	}
}

// scoreCmd creates the score command.
func scoreCmd(env *appEnv) *cli.Command {
	scoreInput := func(c *cli.Context) ops.ScoreInput {
		return ops.ScoreInput{ProjectID: c.String("project"), Entity: c.String("entity")}
	}
	return &cli.Command{
		Name:  "score",
		Usage: "Compute or show entity scores",
		Subcommands: []*cli.Command{
			{
				Name:  "compute",
				Usage: "Compute and store a score from current signals",
				Flags: []cli.Flag{projectFlag(), entityFlag()},
				Action: func(c *cli.Context) error {
					result, err := ops.ComputeScore(c.Context, env.deps, scoreInput(c))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
			{
				Name:  "show",
				Usage: "Show the last stored score",
				Flags: []cli.Flag{projectFlag(), entityFlag()},
				Action: func(c *cli.Context) error {
					result, err := ops.GetScore(c.Context, env.deps, scoreInput(c))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
		},
	}
}

// issuesCmd creates the issues command.
func issuesCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "issues",
		Usage: "List the project's issues, most severe first",
		Flags: []cli.Flag{
			projectFlag(),
			&cli.StringFlag{Name: "min-severity", Usage: "info|warning|critical"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum issues (0 = all)"},
		},
		Action: func(c *cli.Context) error {
			result, err := ops.DeriveIssues(c.Context, env.deps, ops.DeriveIssuesInput{
				ProjectID:   c.String("project"),
				MinSeverity: c.String("min-severity"),
				Limit:       c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// draftCmd creates the draft command.
func draftCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "draft",
		Usage: "Generate, edit and apply field group drafts",
		Subcommands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Generate a suggestion into an unsaved draft",
				Flags: targetFlags(
					&cli.StringFlag{Name: "fix-type", Required: true, Usage: "Kind of fix (e.g. rewrite)"},
					&cli.BoolFlag{Name: "refresh", Usage: "Bypass earlier identical results"},
				),
				Action: func(c *cli.Context) error {
					result, err := ops.GenerateDraft(c.Context, env.deps, env.cache, env.gen, ops.GenerateDraftInput{
						Target:  target(c),
						FixType: c.String("fix-type"),
						Refresh: c.Bool("refresh"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
			{
				Name:  "save",
				Usage: "Save the final suggestion (reads it from stdin when --text is absent)",
				Flags: targetFlags(
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Final suggestion"},
					expectedVersionFlag(),
					&cli.BoolFlag{Name: "confirm-clear", Usage: "Confirm that empty content clears the live value"},
				),
				Action: func(c *cli.Context) error {
					text := c.String("text")
					if !c.IsSet("text") && stdinHasData() {
						var err error
						if text, err = readStdin(maxStdinBytes); err != nil {
							return outputError(errors.NewInvalidRequest(err.Error()))
						}
					}
					result, err := ops.SaveDraft(c.Context, env.deps, ops.SaveDraftInput{
						Target:          target(c),
						FinalSuggestion: text,
						ExpectedVersion: c.Int64("expected-version"),
						ConfirmClear:    c.Bool("confirm-clear"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
			{
				Name:  "show",
				Usage: "Show the current draft and what apply would change",
				Flags: targetFlags(),
				Action: func(c *cli.Context) error {
					result, err := ops.GetDraft(c.Context, env.deps, ops.GetDraftInput{Target: target(c)})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
			{
				Name:  "apply",
				Usage: "Apply the saved draft to the live field",
				Flags: targetFlags(actorFlag(), expectedVersionFlag()),
				Action: func(c *cli.Context) error {
					result, err := ops.ApplyDraft(c.Context, env.deps, ops.ApplyDraftInput{
						Target:          target(c),
						ActorID:         c.String("actor"),
						ExpectedVersion: c.Int64("expected-version"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
			{
				Name:  "reset",
				Usage: "Discard the current draft",
				Flags: targetFlags(expectedVersionFlag()),
				Action: func(c *cli.Context) error {
					result, err := ops.ResetDraft(c.Context, env.deps, ops.ResetDraftInput{
						Target:          target(c),
						ExpectedVersion: c.Int64("expected-version"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
			{
				Name:  "governance",
				Usage: "Report whether an actor can apply the current draft",
				Flags: targetFlags(actorFlag()),
				Action: func(c *cli.Context) error {
					result, err := ops.GetGovernance(c.Context, env.deps, ops.GovernanceInput{
						Target:  target(c),
						ActorID: c.String("actor"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
		},
	}
}

// approvalCmd creates the approval command.
func approvalCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "approval",
		Usage: "Request and decide draft approvals",
		Subcommands: []*cli.Command{
			{
				Name:  "request",
				Usage: "Request approval for the current saved draft version",
				Flags: targetFlags(actorFlag()),
				Action: func(c *cli.Context) error {
					result, err := ops.RequestApproval(c.Context, env.deps, ops.RequestApprovalInput{
						Target:  target(c),
						ActorID: c.String("actor"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
			{
				Name:  "decide",
				Usage: "Approve or reject a pending request",
				Flags: []cli.Flag{
					projectFlag(),
					actorFlag(),
					&cli.StringFlag{Name: "id", Required: true, Usage: "Approval request id"},
					&cli.StringFlag{Name: "decision", Aliases: []string{"d"}, Required: true, Usage: "approve|reject"},
				},
				Action: func(c *cli.Context) error {
					result, err := ops.DecideApproval(c.Context, env.deps, ops.DecideApprovalInput{
						ProjectID:  c.String("project"),
						ApprovalID: c.String("id"),
						ActorID:    c.String("actor"),
						Decision:   c.String("decision"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
			{
				Name:  "list",
				Usage: "List approval requests of the current draft",
				Flags: targetFlags(),
				Action: func(c *cli.Context) error {
					result, err := ops.ListApprovals(c.Context, env.deps, ops.ListApprovalsInput{Target: target(c)})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
		},
	}
}

// Helper functions

// outputJSON writes JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats err as the same error object MCP clients receive.
func outputError(err error) error {
	obj := map[string]any{"code": errors.ErrInternal, "message": err.Error()}
	var sErr *errors.SightlineError
	if stderrors.As(err, &sErr) {
		obj["code"] = sErr.Code
		if sErr.NextStep != "" {
			obj["next_step"] = sErr.NextStep
		}
		if sErr.Details != nil {
			obj["details"] = sErr.Details
		}
	}
	b, mErr := json.Marshal(map[string]any{"error": obj})
	if mErr != nil {
		return cli.Exit(err.Error(), 1)
	}
	return cli.Exit(string(b), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin, failing if it exceeds limit bytes.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseList splits a comma-separated string, dropping empty items.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			items = append(items, v)
		}
	}
	return items
}
