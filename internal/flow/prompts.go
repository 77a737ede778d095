package flow

import (
	"fmt"

	"github.com/vedaverse/followerbot/internal/models"
)

// Outbound message texts.
const (
	msgIntro              = "Please take a short three-question survey."
	msgAskGender          = "Are you male or female?"
	msgAskCountry         = "Which country do you live in?"
	msgAskNews            = "Would you like to receive news?"
	msgThanks             = "Thank you for your answers! Your information has been saved."
	msgEndOfFeed          = "That was the last news item."
	msgRegistrationFailed = "We could not register you. Please try again later."
	msgProcessingError    = "Something went wrong while handling your request. Please try again."
	msgRestartRequired    = "Something went wrong. Please send /start to begin again."
	msgUseButtons         = "Please use the buttons above to answer."
	msgFallback           = "Welcome! Let's chat."
)

func textMessage(text string) models.Message {
	return models.Message{Text: text}
}

func welcomeBackMessage(firstName string) models.Message {
	return textMessage(fmt.Sprintf("Hi, %s! Great to see you again.", firstName))
}

func registeredMessage(firstName string) models.Message {
	return textMessage(fmt.Sprintf("Hi, %s! You are registered.", firstName))
}

// questionFor returns the interview prompt for an asking state.
func questionFor(state models.SessionState) (models.Message, bool) {
	switch state {
	case models.StateAskGender:
		return models.Message{
			Text: msgAskGender,
			Choices: []models.Choice{
				{Label: "Male", Data: models.TagGenderMale},
				{Label: "Female", Data: models.TagGenderFemale},
			},
		}, true
	case models.StateAskCountry:
		return models.Message{
			Text: msgAskCountry,
			Choices: []models.Choice{
				{Label: "Russia", Data: models.TagCountryRussia},
				{Label: "Other country", Data: models.TagCountryOther},
			},
		}, true
	case models.StateAskNews:
		return models.Message{
			Text: msgAskNews,
			Choices: []models.Choice{
				{Label: "Yes", Data: models.TagNewsYes},
				{Label: "No", Data: models.TagNewsNo},
			},
		}, true
	default:
		return models.Message{}, false
	}
}

// contentMessage renders one feed item with the single "next" affordance.
func contentMessage(item *models.ContentItem) models.Message {
	return models.Message{
		Text:     fmt.Sprintf("%s\n%s\n\n%s", item.Name, item.Description, item.Content),
		MediaURL: item.MediaURL,
		Choices:  []models.Choice{{Label: "Next", Data: models.TagNextNews}},
	}
}
