package prompts

import (
	"fmt"
	"strings"
)

// DescribeImage is the default instruction sent with an image to the
// vision model.
const DescribeImage = "What's in this image? Describe the image in detail. " +
	"If this is a board game, read the current status of the board, but do not make an analysis at all"

// chunkNotesTemplate is the map-phase prompt for one transcript chunk.
// Format verbs: 1: question, 2: chunk index, 3: total chunks, 4: chunk.
const chunkNotesTemplate = `You are reading part %[2]d of %[3]d of a video transcript in order to answer a question.

Question: %[1]s

Copy out every sentence, number, name, and quotation from this part that
could help answer the question, verbatim where possible. If nothing in this
part is relevant, reply with exactly: NOTHING RELEVANT

Transcript part:
%[4]s

Relevant notes:`

// answerTemplate is the reduce-phase prompt. Format verbs: 1: title,
// 2: question, 3: notes or transcript.
const answerTemplate = `Answer the question about the video "%[1]s" using only the material below.
Quote the exact wording when the question asks what someone said. If the
material does not contain the answer, say so plainly.

Question: %[2]s

Material:
%[3]s

Answer:`

// VideoChunkNotesPrompt returns the map-phase prompt that extracts
// question-relevant notes from one chunk of a transcript.
func VideoChunkNotesPrompt(question, chunk string, chunkIndex, totalChunks int) string {
	return fmt.Sprintf(chunkNotesTemplate, question, chunkIndex, totalChunks, chunk)
}

// VideoAnswerPrompt returns the prompt that answers question from the
// collected material (either the whole transcript or the chunk notes).
func VideoAnswerPrompt(title, question, material string) string {
	if strings.TrimSpace(title) == "" {
		title = "untitled"
	}
	return fmt.Sprintf(answerTemplate, title, question, material)
}

// ImageQuestion returns the vision instruction for an image. An empty
// question yields the generic description request.
func ImageQuestion(question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return DescribeImage
	}
	return DescribeImage + "\n\nAlso answer this question about the image: " + question
}
