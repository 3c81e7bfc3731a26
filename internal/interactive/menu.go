// Package interactive provides terminal menu components
package interactive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
)

// MenuOption represents a menu item with its associated action
type MenuOption struct {
	Name        string
	Description string
	Action      func() error
}

const exitChoice = "Exit"

var (
	// ErrExit is returned when the user chooses to exit
	ErrExit = errors.New("exit")
	// ErrInvalidSelection is returned when an invalid menu option is selected
	ErrInvalidSelection = errors.New("invalid selection")
)

// askOne is swapped in tests.
var askOne = survey.AskOne

// ShowMainMenu displays the main menu and runs the selected action.
// Interrupting the prompt is treated as exit.
func ShowMainMenu(options []MenuOption) error {
	choices := make([]string, 0, len(options)+1)
	optionMap := make(map[string]MenuOption, len(options))

	for _, opt := range options {
		choice := fmt.Sprintf("%s - %s", opt.Name, opt.Description)
		choices = append(choices, choice)
		optionMap[choice] = opt
	}

	choices = append(choices, exitChoice)

	var selected string
	prompt := &survey.Select{
		Message:  "What would you like to do?",
		Options:  choices,
		PageSize: len(choices),
	}

	if err := askOne(prompt, &selected); err != nil {
		return ErrExit
	}

	if selected == exitChoice {
		return ErrExit
	}

	if option, ok := optionMap[selected]; ok {
		return option.Action()
	}

	return ErrInvalidSelection
}

// Select asks the user to pick one of options.
func Select(message string, options []string, defaultOption string) (string, error) {
	var selected string

	prompt := &survey.Select{
		Message: message,
		Options: options,
		Default: defaultOption,
	}

	if err := askOne(prompt, &selected); err != nil {
		return "", fmt.Errorf("reading selection: %w", err)
	}

	return selected, nil
}

// Confirm asks for user confirmation
func Confirm(message string) bool {
	confirmed := false
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	_ = askOne(prompt, &confirmed)
	return confirmed
}

// PauseForEnter waits for the user to press Enter
func PauseForEnter() {
	pause(os.Stdin, os.Stdout)
}

func pause(in io.Reader, out io.Writer) {
	_, _ = fmt.Fprintln(out, "\nPress Enter to continue...")
	_, _ = bufio.NewReader(in).ReadString('\n')
}
