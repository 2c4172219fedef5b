package bootstrap

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/config"
)

const (
	accessSection      = `[access "refs/heads/*"]`
	capabilitySection  = `[capability]`
	verifiedLabelTitle = `[label "Verified"]`
	verifiedPermission = "label-Verified = -1..+1 group Administrators"
	databaseAccessLine = "accessDatabase = group Administrators"
)

var verifiedLabelBody = []string{
	"function = MaxWithBlock",
	"value = -1 Fails",
	"value =  0 No score",
	"value = +1 Verified",
}

// ConfigPatcher adds one setting to a project.config document.
// present is true when the document already carries the setting, in which case patched is unused.
type ConfigPatcher interface {
	Patch(content string) (patched string, present bool, err error)
}

// Kind selects a patcher implementation
type Kind string

const (
	KindText       Kind = "text"
	KindStructured Kind = "structured"
)

// Patchers returns the label and capability patchers of the given kind
func Patchers(kind Kind) (label, capability ConfigPatcher, err error) {
	switch kind {
	case KindText, "":
		return TextLabelPatcher{}, TextCapabilityPatcher{}, nil
	case KindStructured:
		return StructuredLabelPatcher{}, StructuredCapabilityPatcher{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown patcher kind %q", kind)
	}
}

// TextLabelPatcher edits the document line by line and keeps comments and layout intact
type TextLabelPatcher struct{}

func (TextLabelPatcher) Patch(content string) (string, bool, error) {
	lines := splitConfig(content)
	for _, line := range lines {
		if strings.Contains(line, verifiedLabelTitle) {
			return "", true, nil
		}
	}

	var b strings.Builder
	granted := false
	for _, line := range lines {
		b.WriteString(line + "\n")
		if strings.Contains(line, accessSection) {
			b.WriteString("\t" + verifiedPermission + "\n")
			granted = true
		}
	}
	if !granted {
		b.WriteString(accessSection + "\n")
		b.WriteString("\t" + verifiedPermission + "\n")
	}
	b.WriteString(verifiedLabelTitle + "\n")
	for _, line := range verifiedLabelBody {
		b.WriteString("\t" + line + "\n")
	}
	return b.String(), false, nil
}

// TextCapabilityPatcher grants accessDatabase to Administrators
type TextCapabilityPatcher struct{}

func (TextCapabilityPatcher) Patch(content string) (string, bool, error) {
	lines := splitConfig(content)
	for _, line := range lines {
		if strings.Contains(line, databaseAccessLine) {
			return "", true, nil
		}
	}

	var b strings.Builder
	granted := false
	for _, line := range lines {
		b.WriteString(line + "\n")
		if strings.Contains(line, capabilitySection) {
			b.WriteString("\t" + databaseAccessLine + "\n")
			granted = true
		}
	}
	if !granted {
		b.WriteString(capabilitySection + "\n")
		b.WriteString("\t" + databaseAccessLine + "\n")
	}
	return b.String(), false, nil
}

func splitConfig(content string) []string {
	content = strings.TrimRight(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// StructuredLabelPatcher edits a decoded config model. Comments are not preserved.
type StructuredLabelPatcher struct{}

func (StructuredLabelPatcher) Patch(content string) (string, bool, error) {
	cfg, err := decodeConfig(content)
	if err != nil {
		return "", false, err
	}
	if cfg.Section("label").HasSubsection("Verified") {
		return "", true, nil
	}

	key, value := splitOption(verifiedPermission)
	cfg.Section("access").Subsection("refs/heads/*").AddOption(key, value)

	label := cfg.Section("label").Subsection("Verified")
	for _, line := range verifiedLabelBody {
		k, v := splitOption(line)
		label.AddOption(k, strings.TrimSpace(v))
	}
	return encodeConfig(cfg)
}

// StructuredCapabilityPatcher grants accessDatabase through the decoded config model
type StructuredCapabilityPatcher struct{}

func (StructuredCapabilityPatcher) Patch(content string) (string, bool, error) {
	cfg, err := decodeConfig(content)
	if err != nil {
		return "", false, err
	}
	key, value := splitOption(databaseAccessLine)
	capability := cfg.Section("capability")
	for _, v := range capability.Options.GetAll(key) {
		if v == value {
			return "", true, nil
		}
	}
	capability.AddOption(key, value)
	return encodeConfig(cfg)
}

func splitOption(line string) (string, string) {
	key, value, _ := strings.Cut(line, "=")
	return strings.TrimSpace(key), strings.TrimSpace(value)
}

func decodeConfig(content string) (*config.Config, error) {
	cfg := config.New()
	if err := config.NewDecoder(strings.NewReader(content)).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project.config: %w", err)
	}
	return cfg, nil
}

func encodeConfig(cfg *config.Config) (string, bool, error) {
	var buf bytes.Buffer
	if err := config.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", false, fmt.Errorf("failed to write project.config: %w", err)
	}
	return buf.String(), false, nil
}
