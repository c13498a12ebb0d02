package cli

import (
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	appanalysis "github.com/bryanwahyu/maestro-analyzer/internal/application/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/presets"
)

const customPreset = "custom"

// promptDescription asks for a preset or a typed description.
func promptDescription(in io.Reader) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "", errors.New("--interactive needs a terminal, use --file or --preset instead")
	}
	list, err := presets.All()
	if err != nil {
		return "", err
	}

	choice := customPreset
	options := []huh.Option[string]{huh.NewOption("Custom description", customPreset)}
	for _, p := range list {
		options = append(options, huh.NewOption(p.Label, p.Value))
	}
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Architecture").
			Description("Start from an example or write your own").
			Options(options...).
			Value(&choice),
	)).Run(); err != nil {
		return "", err
	}

	var desc string
	if p, ok := presets.Find(choice); ok {
		desc = p.Description
	}
	if err := huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title("Architecture description").
			Description("Agents, tools, data stores and how they talk").
			CharLimit(appanalysis.MaxArchitectureLen).
			Validate(validateDescription).
			Value(&desc),
	)).Run(); err != nil {
		return "", err
	}
	return desc, nil
}

func validateDescription(s string) error {
	if utf8.RuneCountInString(strings.TrimSpace(s)) < appanalysis.MinArchitectureLen {
		return errors.New("Architecture description must be at least 50 characters.")
	}
	return nil
}
