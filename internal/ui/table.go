package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cli/go-gh/v2/pkg/tableprinter"
	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/ryo246912/gerrit-bridge/internal/models"
)

const defaultWidth = 120

// Table wraps a go-gh table printer sized for the current terminal
type Table struct {
	tp    tableprinter.TablePrinter
	isTTY bool
}

// NewTable creates a table writing to w. Non-terminal output is tab-separated.
func NewTable(w io.Writer) *Table {
	t := term.FromEnv()
	width := defaultWidth
	if tw, _, err := t.Size(); err == nil && tw > 0 {
		width = tw
	}
	return newTable(w, t.IsTerminalOutput(), width)
}

func newTable(w io.Writer, isTTY bool, width int) *Table {
	return &Table{tp: tableprinter.New(w, isTTY, width), isTTY: isTTY}
}

// PrintChanges renders changes one per row
func (t *Table) PrintChanges(changes []models.Change) error {
	t.tp.AddHeader([]string{"CHANGE", "PATCH", "BRANCH", "OWNER", "VERIFIED", "UPDATED", "SUBJECT"})
	for _, c := range changes {
		t.tp.AddField(strconv.Itoa(c.Number))
		t.tp.AddField(strconv.Itoa(c.CurrentPatchSet.Number))
		t.tp.AddField(c.Branch)
		t.tp.AddField(t.fit(c.Owner.String(), ownerWidth))
		t.tp.AddField(VerifiedLabel(c.VerificationScore))
		t.tp.AddField(c.LastUpdate.UTC().Format("2006-01-02 15:04"))
		t.tp.AddField(t.fit(c.Subject, subjectWidth))
		t.tp.EndRow()
	}
	if err := t.tp.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// fit keeps terminal columns aligned; piped output keeps full values
func (t *Table) fit(s string, width int) string {
	if !t.isTTY {
		return s
	}
	return Truncate(s, width)
}

// PrintBranches renders one branch per row
func (t *Table) PrintBranches(branches []string) error {
	t.tp.AddHeader([]string{"BRANCH"})
	for _, b := range branches {
		t.tp.AddField(b)
		t.tp.EndRow()
	}
	if err := t.tp.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
