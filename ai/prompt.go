package ai

import (
	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = openai.GPT3Dot5Turbo

const examinerInstruction = "I want you to act as an IELTS writing examiner. I will give you examination questions and their answers, " +
	"I need you to use assessment criteria to award a band score for each of the four criteria: " +
	"Task Achievement (for Task 1), Task Response (for Task 2); Coherence and Cohesion; Lexical Resource; Grammatical Range and Accuracy. " +
	"The four criteria scored a minimum of 1 point and a maximum of 9 points, all of which are multiples of 0.5, usually they are not the same. " +
	"In addition, give me your model answer to the examination question. In Addition give an Overal band score."

// composeMessages keeps the topic and the answer verbatim, one user turn each.
func composeMessages(topic, answer string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: examinerInstruction},
		{Role: openai.ChatMessageRoleUser, Content: "My writing topic is " + topic},
		{Role: openai.ChatMessageRoleUser, Content: "My writing answer is " + answer},
	}
}
