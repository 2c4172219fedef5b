package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/ryo246912/gerrit-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChange() models.Change {
	return models.Change{
		Number:            42,
		Branch:            "master",
		Subject:           "Fix flaky poll",
		Owner:             models.Identity{Name: "Jane", Email: "jane@example.com"},
		LastUpdate:        time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		VerificationScore: 1,
		CurrentPatchSet:   models.PatchSet{Number: 3},
	}
}

func TestTable_PrintChangesPlain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTable(&buf, false, 80).PrintChanges([]models.Change{sampleChange()}))

	out := buf.String()
	assert.Contains(t, out, "42\t3\tmaster\tJane <jane@example.com>\t+1\t2024-03-01 09:30\tFix flaky poll")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTable_PrintChangesTerminalTruncatesWideSubject(t *testing.T) {
	c := sampleChange()
	c.Subject = strings.Repeat("修", 40)

	var buf bytes.Buffer
	require.NoError(t, newTable(&buf, true, 200).PrintChanges([]models.Change{c}))

	out := buf.String()
	assert.Contains(t, out, strings.Repeat("修", 28)+"...")
	assert.NotContains(t, out, strings.Repeat("修", 29))
}

func TestTable_PrintChangesPlainKeepsFullSubject(t *testing.T) {
	c := sampleChange()
	c.Subject = strings.Repeat("修", 40)

	var buf bytes.Buffer
	require.NoError(t, newTable(&buf, false, 80).PrintChanges([]models.Change{c}))
	assert.Contains(t, buf.String(), c.Subject)
}

func TestTable_PrintBranchesPlain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTable(&buf, false, 80).PrintBranches([]string{"develop", "release-1.0"}))
	assert.Contains(t, buf.String(), "develop\n")
	assert.Contains(t, buf.String(), "release-1.0\n")
}

func TestVerifiedLabel(t *testing.T) {
	tests := []struct {
		score    int
		expected string
	}{
		{0, "-"},
		{1, "+1"},
		{2, "+2"},
		{-1, "-1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, VerifiedLabel(tt.score))
	}
}

func TestChangeLine(t *testing.T) {
	c := sampleChange()
	c.Subject = strings.Repeat("x", 80)

	line := ChangeLine(c)
	assert.True(t, strings.HasPrefix(line, "42,3      "))
	assert.Contains(t, line, strings.Repeat("x", 57)+"...")
	assert.NotContains(t, line, strings.Repeat("x", 58))
	assert.True(t, strings.HasSuffix(line, "2024-03-01 09:30"))
}

func TestChangeLine_WideSubjectKeepsColumns(t *testing.T) {
	ascii := sampleChange()
	ascii.Subject = strings.Repeat("x", 80)
	wide := sampleChange()
	wide.Subject = strings.Repeat("修", 40)

	line := ChangeLine(wide)
	assert.Contains(t, line, strings.Repeat("修", 28)+"... ")
	assert.NotContains(t, line, strings.Repeat("修", 29))
	assert.Equal(t, runewidth.StringWidth(ChangeLine(ascii)), runewidth.StringWidth(line))
}
