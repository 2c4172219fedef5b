package cli

import (
	"fmt"
	"io"

	"github.com/ryo246912/gerrit-bridge/internal/models"
	"github.com/ryo246912/gerrit-bridge/internal/service"
	"github.com/ryo246912/gerrit-bridge/internal/ui"
	"github.com/spf13/cobra"
)

func newDetectCommand(a *App) *cobra.Command {
	var previous, revision string
	var isolate bool
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Decide what the next build should run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				changes *models.BuildChanges
				err     error
			)
			if revision != "" {
				changes, err = a.bridge.Detector.CollectChangesForRevision(cmd.Context(), revision)
			} else {
				changes, err = a.bridge.Detector.CollectChangesSinceRevision(cmd.Context(), previous)
			}
			if err != nil {
				return err
			}
			if isolate {
				isolated := service.IsolateCommits(*changes)
				return a.render(cmd, isolated, func(w io.Writer) error {
					for i := range isolated {
						if i > 0 {
							fmt.Fprintln(w, "---")
						}
						if err := writeBuildChanges(w, &isolated[i]); err != nil {
							return err
						}
					}
					return nil
				})
			}
			return a.render(cmd, changes, func(w io.Writer) error {
				return writeBuildChanges(w, changes)
			})
		},
	}
	cmd.Flags().StringVar(&previous, "previous", "", "revision built by the previous run")
	cmd.Flags().StringVar(&revision, "revision", "", "build this patch set revision instead of polling")
	cmd.Flags().BoolVar(&isolate, "isolate", false, "emit one change-set per commit, oldest first")
	cmd.MarkFlagsMutuallyExclusive("previous", "revision")
	return cmd
}

func newListCommand(a *App) *cobra.Command {
	var unverified bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open changes in build order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := a.bridge.Detector.OpenChanges(cmd.Context(), unverified)
			if err != nil {
				return err
			}
			return a.render(cmd, changes, func(w io.Writer) error {
				return ui.NewTable(w).PrintChanges(changes)
			})
		},
	}
	cmd.Flags().BoolVar(&unverified, "unverified", false, "only changes without a Verified vote")
	return cmd
}

func newLastCommitCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "last-commit",
		Short: "Show the commit the next poll would build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			commit, err := a.bridge.Detector.LastCommit(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd, commit, func(w io.Writer) error {
				writeCommit(w, *commit)
				return nil
			})
		},
	}
}

func newCheckoutCommand(a *App) *cobra.Command {
	var revision, dir string
	var deep bool
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Fetch and check out a patch set revision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.initialized(cmd.Context())
			if err != nil {
				return err
			}
			wc, err := b.Repository.RetrieveSourceCode(cmd.Context(), revision, a.workDir(dir), deep)
			if err != nil {
				return err
			}
			return a.render(cmd, wc, func(w io.Writer) error { return writeWorkingCopy(w, wc) })
		},
	}
	cmd.Flags().StringVar(&revision, "revision", "", "patch set revision")
	cmd.Flags().StringVar(&dir, "dir", "", "working copy directory (default <git.working_dir>/<project>)")
	cmd.Flags().BoolVar(&deep, "deep", false, "fetch full history even with shallow clones enabled")
	_ = cmd.MarkFlagRequired("revision")
	return cmd
}

func newMergeCommand(a *App) *cobra.Command {
	var req service.MergeRequest
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a patch set or branch into the target without committing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.initialized(cmd.Context())
			if err != nil {
				return err
			}
			req.Dir = a.workDir(req.Dir)
			wc, err := b.Repository.CheckoutAndMerge(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.render(cmd, wc, func(w io.Writer) error { return writeWorkingCopy(w, wc) })
		},
	}
	cmd.Flags().StringVar(&req.TargetBranch, "target", "", "target branch (default gerrit.branch)")
	cmd.Flags().StringVar(&req.TargetRevision, "target-revision", "", "target revision, overrides the branch tip")
	cmd.Flags().StringVar(&req.SourceRevision, "source", "", "source revision")
	cmd.Flags().StringVar(&req.SourceBranch, "source-branch", "", "source branch")
	cmd.Flags().StringVar(&req.Dir, "dir", "", "working copy directory (default <git.working_dir>/<project>)")
	cmd.MarkFlagsOneRequired("source", "source-branch")
	return cmd
}

func newCommitCommand(a *App) *cobra.Command {
	var dir, branch, message string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the working copy, concluding a pending merge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.initialized(cmd.Context())
			if err != nil {
				return err
			}
			wc, err := b.Repository.CommitLocal(cmd.Context(), models.WorkingCopy{
				RepositoryID: b.Config.Gerrit.Project,
				Path:         a.workDir(dir),
				Branch:       branch,
			}, message)
			if err != nil {
				return err
			}
			return a.render(cmd, wc, func(w io.Writer) error { return writeWorkingCopy(w, wc) })
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "working copy directory (default <git.working_dir>/<project>)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch the commit belongs to")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newPushCommand(a *App) *cobra.Command {
	var dir, branch, revision string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push a revision of the working copy to a branch on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.initialized(cmd.Context())
			if err != nil {
				return err
			}
			wc, err := b.Repository.UpdateRemote(cmd.Context(), models.WorkingCopy{
				RepositoryID: b.Config.Gerrit.Project,
				Path:         a.workDir(dir),
				Branch:       branch,
				Revision:     revision,
			})
			if err != nil {
				return err
			}
			return a.render(cmd, wc, func(w io.Writer) error { return writeWorkingCopy(w, wc) })
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "working copy directory (default <git.working_dir>/<project>)")
	cmd.Flags().StringVar(&branch, "branch", "", "target branch (default gerrit.branch)")
	cmd.Flags().StringVar(&revision, "revision", "HEAD", "revision to push")
	return cmd
}

func newVerifyCommand(a *App) *cobra.Command {
	var req service.VerifyRequest
	var fail bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Vote Verified +1 or -1 on a change",
		Long:  "Vote Verified +1 or -1 on a change. Without --change, pick one of the unverified open changes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.initialized(cmd.Context())
			if err != nil {
				return err
			}
			verifier := service.NewVerifyService(b.Client, b.Detector, a.Prompter)
			change, err := verifier.ProcessVerification(cmd.Context(), req)
			if err != nil {
				return err
			}
			patch := req.PatchNumber
			if patch == 0 {
				patch = change.CurrentPatchSet.Number
			}
			out := verifyOutput{Change: change.Number, Patch: patch, Pass: req.Pass}
			return a.render(cmd, out, func(w io.Writer) error {
				vote := "-1"
				if out.Pass {
					vote = "+1"
				}
				_, err := fmt.Fprintf(w, "Verified %s on %d,%d\n", vote, out.Change, out.Patch)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&req.ChangeNumber, "change", 0, "change number (prompt when omitted)")
	cmd.Flags().IntVar(&req.PatchNumber, "patchset", 0, "patch set number (default current)")
	cmd.Flags().BoolVar(&req.Pass, "pass", false, "vote +1")
	cmd.Flags().BoolVar(&fail, "fail", false, "vote -1")
	cmd.Flags().StringVarP(&req.Message, "message", "m", "", "review message")
	cmd.Flags().BoolVarP(&req.Yes, "yes", "y", false, "skip confirmation")
	cmd.MarkFlagsMutuallyExclusive("pass", "fail")
	cmd.MarkFlagsOneRequired("pass", "fail")
	return cmd
}

func newReportCommand(a *App) *cobra.Command {
	var revision string
	var result service.BuildResult
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report a finished build as a Verified vote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.initialized(cmd.Context())
			if err != nil {
				return err
			}
			outcome, err := b.Reporter.Report(cmd.Context(), revision, result)
			if err != nil {
				return err
			}
			out := reportOutput{Revision: revision, Outcome: outcome.String()}
			return a.render(cmd, out, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s: %s\n", out.Revision, out.Outcome)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&revision, "revision", "", "revision that was built")
	cmd.Flags().BoolVar(&result.Success, "success", false, "the build passed")
	cmd.Flags().StringVar(&result.ResultsURL, "url", "", "link to the build results")
	_ = cmd.MarkFlagRequired("revision")
	return cmd
}

func newBootstrapCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Install the Verified label and database access on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := a.bridge
			if err := b.RunBootstrap(cmd.Context()); err != nil {
				return err
			}
			out := bootstrapOutput{
				VerifiedLabel:  b.Bootstrap.VerifiedLabelInstalled(),
				DatabaseAccess: b.Bootstrap.DatabaseAccessGranted(),
				Committer:      b.Bootstrap.Committer().String(),
			}
			return a.render(cmd, out, func(w io.Writer) error {
				fmt.Fprintf(w, "verified label: %t\n", out.VerifiedLabel)
				fmt.Fprintf(w, "database access: %t\n", out.DatabaseAccess)
				_, err := fmt.Fprintf(w, "committer: %s\n", out.Committer)
				return err
			})
		},
	}
}

func newTestConnectionCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check the SSH command channel and the configured project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := a.bridge.CheckConnection(cmd.Context())
			if err != nil {
				return err
			}
			out := connectionOutput{Version: version, Project: a.bridge.Config.Gerrit.Project}
			return a.render(cmd, out, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "connected to Gerrit %s, project %s\n", out.Version, out.Project)
				return err
			})
		},
	}
}

func newBranchesCommand(a *App) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "branches",
		Short: "List server branches other than the configured one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			branches, err := a.bridge.Repository.OpenBranches(cmd.Context(), a.workDir(dir))
			if err != nil {
				return err
			}
			return a.render(cmd, branches, func(w io.Writer) error {
				return ui.NewTable(w).PrintBranches(branches)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "working copy directory (default <git.working_dir>/<project>)")
	return cmd
}
