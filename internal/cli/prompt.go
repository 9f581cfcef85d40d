package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/raine/hotpotato/internal/pipeline"
	"github.com/raine/hotpotato/internal/vision"
)

// errAborted is returned when the user cancels a prompt.
var errAborted = errors.New("aborted")

// Prompter collects user decisions during a listing run.
type Prompter interface {
	// ItemName confirms or overrides the detected item name.
	ItemName(detection *vision.DetectionResult, current string) (string, error)
	// EditForm lets the user edit the generated copy.
	EditForm(form pipeline.Form) (pipeline.Form, error)
	// Retry asks whether to retry after msg.
	Retry(msg string) (bool, error)
}

// Overrides are values given on the command line. Empty fields are not
// applied.
type Overrides struct {
	ItemName    string
	Title       string
	Description string
	Price       string
}

func (o Overrides) applyForm(form pipeline.Form) pipeline.Form {
	if o.Title != "" {
		form.Title = o.Title
	}
	if o.Description != "" {
		form.Description = o.Description
	}
	if o.Price != "" {
		form.Price = o.Price
	}
	return form
}

// autoPrompter accepts AI output without asking.
type autoPrompter struct {
	overrides Overrides
}

func (a autoPrompter) ItemName(detection *vision.DetectionResult, current string) (string, error) {
	if a.overrides.ItemName != "" {
		return a.overrides.ItemName, nil
	}
	return current, nil
}

func (a autoPrompter) EditForm(form pipeline.Form) (pipeline.Form, error) {
	return a.overrides.applyForm(form), nil
}

func (a autoPrompter) Retry(msg string) (bool, error) {
	return false, nil
}

// huhPrompter asks in the terminal.
type huhPrompter struct {
	overrides Overrides
}

func runForm(form *huh.Form) error {
	err := form.WithTheme(huh.ThemeBase16()).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return errAborted
	}
	return err
}

func (h huhPrompter) ItemName(detection *vision.DetectionResult, current string) (string, error) {
	name := current
	if h.overrides.ItemName != "" {
		name = h.overrides.ItemName
	}
	description := "Nothing was recognised. Type what the item is."
	if detection != nil {
		description = "Detected: " + renderDetection(detection)
	}

	err := runForm(huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("What is it?").
			Description(description).
			Value(&name).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New(vision.MsgItemNameRequired)
				}
				return nil
			}),
	)))
	return name, err
}

func (h huhPrompter) EditForm(form pipeline.Form) (pipeline.Form, error) {
	form = h.overrides.applyForm(form)
	err := runForm(huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Title").
			Value(&form.Title),
		huh.NewText().
			Title("Description").
			Lines(6).
			Value(&form.Description),
		huh.NewInput().
			Title("Price").
			Prompt("$ ").
			Value(&form.Price).
			Validate(func(s string) error {
				_, err := pipeline.ParsePrice(s)
				return err
			}),
	)))
	return form, err
}

func (h huhPrompter) Retry(msg string) (bool, error) {
	retry := true
	err := runForm(huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("%s. Try again?", strings.TrimSuffix(msg, "."))).
			Affirmative("Retry").
			Negative("Give up").
			Value(&retry),
	)))
	return retry, err
}
