package prompts

import "fmt"

const finalAnswerTemplate = `You are given a question and an answer. Return the final answer to the question.
The final answer must be crisp and clear, use proper grammar and sentence case. If asked for a value, return only the value. If asked for a list, return the list. Make no additional comments, greetings or explanations.

For example:

Question: What is the opposite of up?
Answer: The opposite of up is down.
Final Answer: Down

Question: Hi friend, where are you traveling to tomorrow?
Answer: I am traveling to St. Petersburg.
Final Answer: Saint Petersburg

Question: Hey there, your turn. What's the best move?
Answer: The optimal move in this position is Re6.
Final Answer: Re6

Respond with a JSON object of the form {"answer": "<final answer>"}.

Question: %s
Answer: %s`

// FinalAnswer builds the answer normalization prompt.
func FinalAnswer(question, answer string) string {
	return fmt.Sprintf(finalAnswerTemplate, question, answer)
}
