package dialog

import (
	"fmt"
	"strings"

	"Examiner/storage"
)

// Keyboard is the reply-option hint sent along with a message.
type Keyboard int

const (
	KeyboardKeep Keyboard = iota
	KeyboardChoices
	KeyboardRemove
)

type Reply struct {
	Text     string
	Keyboard Keyboard
}

const (
	greetingText = "Hi! I'm an IELTS examiner and want to help you to assess your writing skills. " +
		"Please give me your IELTS topic and writing answer. \n" +
		"Note that sometimes ChatGPT Servers have a high load, hence receiving your answer might take time, just wait for it."
	missingFieldsText = "You didn't enter one of Topic or Answer!"
	deniedText        = "You can have only 1 assessment every 5 minute, try it after 5 minute again!"
	failureText       = "Sorry, the examiner is not available right now. Please try again later."
	noSessionText     = "Send /start to begin a new assessment."
	cancelledText     = "Assessment cancelled. Send /start to begin again."
	unknownChoiceText = "Please choose Topic, Answer or Assess."
)

func enterFieldText(field storage.Field) string {
	return fmt.Sprintf("Please enter your %s.", strings.ToLower(string(field)))
}

func fieldsText(session *storage.Session) string {
	lines := make([]string, 0, len(storage.Fields))
	for _, f := range storage.Fields {
		if v, ok := session.Fields[f]; ok {
			lines = append(lines, fmt.Sprintf("%s - %s", f, v))
		}
	}
	return "\n" + strings.Join(lines, "\n") + "\n"
}

func recordedText(session *storage.Session) string {
	return "This is what you already told me: \n" + fieldsText(session) + " \nYou can change it"
}
