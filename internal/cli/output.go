package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ryo246912/gerrit-bridge/internal/models"
	"github.com/spf13/cobra"
)

// render writes v as JSON or through text, depending on --format
func (a *App) render(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	if a.format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return nil
	}
	return text(w)
}

func writeBuildChanges(w io.Writer, changes *models.BuildChanges) error {
	fmt.Fprintf(w, "revision: %s\n", changes.RevisionKey)
	fmt.Fprintf(w, "outcome: %s\n", changes.Outcome)
	if changes.ActualBranch != "" {
		fmt.Fprintf(w, "branch: %s\n", changes.ActualBranch)
	}
	for _, c := range changes.Commits {
		fmt.Fprintln(w)
		writeCommit(w, c)
	}
	return nil
}

func writeCommit(w io.Writer, c models.Commit) {
	fmt.Fprintf(w, "commit %s\n", c.ChangeSetID)
	fmt.Fprintf(w, "Author: %s\n", c.Author)
	fmt.Fprintf(w, "Date:   %s\n", c.Date.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintln(w)
	for _, line := range strings.Split(c.Comment, "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
	if len(c.Files) > 0 {
		fmt.Fprintln(w)
		for _, f := range c.Files {
			fmt.Fprintf(w, "    %s\n", f.Path)
		}
	}
}

func writeWorkingCopy(w io.Writer, wc *models.WorkingCopy) error {
	fmt.Fprintf(w, "path: %s\n", wc.Path)
	fmt.Fprintf(w, "revision: %s\n", wc.Revision)
	if wc.Branch != "" {
		fmt.Fprintf(w, "branch: %s\n", wc.Branch)
	}
	fmt.Fprintf(w, "clean: %t\n", wc.Clean)
	fmt.Fprintf(w, "merged: %t\n", wc.Merged)
	return nil
}

type reportOutput struct {
	Revision string `json:"revision"`
	Outcome  string `json:"outcome"`
}

type verifyOutput struct {
	Change int  `json:"change"`
	Patch  int  `json:"patchSet"`
	Pass   bool `json:"pass"`
}

type connectionOutput struct {
	Version string `json:"version"`
	Project string `json:"project"`
}

type bootstrapOutput struct {
	VerifiedLabel  bool   `json:"verifiedLabel"`
	DatabaseAccess bool   `json:"databaseAccess"`
	Committer      string `json:"committer"`
}
