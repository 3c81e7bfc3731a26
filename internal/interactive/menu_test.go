package interactive

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAsk answers every prompt with answer, or fails with err.
func stubAsk(t *testing.T, answer any, err error) {
	t.Helper()

	original := askOne
	t.Cleanup(func() { askOne = original })

	askOne = func(p survey.Prompt, response any, _ ...survey.AskOpt) error {
		if err != nil {
			return err
		}

		switch r := response.(type) {
		case *string:
			if sel, ok := p.(*survey.Select); ok && answer == nil {
				*r = sel.Options[len(sel.Options)-1]
				return nil
			}
			*r = answer.(string)
		case *bool:
			*r = answer.(bool)
		}

		return nil
	}
}

func TestShowMainMenu_RunsSelectedAction(t *testing.T) {
	called := false
	options := []MenuOption{
		{Name: "Run", Description: "Run the collection", Action: func() error {
			called = true
			return nil
		}},
	}

	stubAsk(t, "Run - Run the collection", nil)

	require.NoError(t, ShowMainMenu(options))
	assert.True(t, called)
}

func TestShowMainMenu_Exit(t *testing.T) {
	stubAsk(t, nil, nil)
	assert.ErrorIs(t, ShowMainMenu(nil), ErrExit)

	stubAsk(t, nil, terminal.InterruptErr)
	assert.ErrorIs(t, ShowMainMenu(nil), ErrExit)
}

func TestShowMainMenu_ActionError(t *testing.T) {
	boom := errors.New("boom")
	stubAsk(t, "Run - x", nil)

	err := ShowMainMenu([]MenuOption{{Name: "Run", Description: "x", Action: func() error { return boom }}})
	assert.ErrorIs(t, err, boom)
}

func TestShowMainMenu_InvalidSelection(t *testing.T) {
	stubAsk(t, "Unknown", nil)
	assert.ErrorIs(t, ShowMainMenu(nil), ErrInvalidSelection)
}

func TestSelect(t *testing.T) {
	stubAsk(t, "csv", nil)

	got, err := Select("Format", []string{"json", "csv"}, "json")
	require.NoError(t, err)
	assert.Equal(t, "csv", got)

	stubAsk(t, nil, terminal.InterruptErr)
	_, err = Select("Format", []string{"json", "csv"}, "json")
	assert.ErrorIs(t, err, terminal.InterruptErr)
}

func TestConfirm(t *testing.T) {
	stubAsk(t, true, nil)
	assert.True(t, Confirm("Proceed?"))

	stubAsk(t, nil, terminal.InterruptErr)
	assert.False(t, Confirm("Proceed?"))
}

func TestPause(t *testing.T) {
	var out bytes.Buffer
	pause(strings.NewReader("\n"), &out)
	assert.Contains(t, out.String(), "Press Enter")
}
