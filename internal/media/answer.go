package media

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/smarty/internal/prompts"
)

// CompleteFunc sends a prompt to a model and returns the reply text.
// The caller binds it to an engine role so this package stays free of
// provider details.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

const (
	// defaultChunkSize is the target character count per chunk during
	// paragraph-boundary splitting.
	defaultChunkSize = 12000

	// maxParallelChunks limits concurrent model calls in the map phase.
	maxParallelChunks = 4

	// nothingRelevant is the map-phase sentinel for chunks with no
	// useful material.
	nothingRelevant = "NOTHING RELEVANT"
)

// chunkTranscript splits a transcript (with paragraphs separated by double
// newlines) into chunks of approximately targetSize characters. Splits occur
// only at paragraph boundaries; a single paragraph that exceeds targetSize
// becomes its own chunk.
func chunkTranscript(transcript string, targetSize int) []string {
	if strings.TrimSpace(transcript) == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	for _, p := range strings.Split(transcript, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > targetSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// Answer answers question from a transcript. Short transcripts go to
// the model in one call. Longer ones are split into chunks, each chunk
// is mined for question-relevant notes in parallel, and the notes are
// combined in a final answering call.
func (c *Client) Answer(ctx context.Context, r *Result, question string) (string, error) {
	if c.cfg.Complete == nil {
		return "", fmt.Errorf("answering model not configured")
	}
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question is required")
	}

	chunks := chunkTranscript(r.Transcript, defaultChunkSize)
	if len(chunks) == 0 {
		return "", fmt.Errorf("transcript is empty")
	}
	if len(chunks) == 1 {
		return c.cfg.Complete(ctx, prompts.VideoAnswerPrompt(r.Title, question, chunks[0]))
	}

	c.logger.Info("answering from long transcript",
		"title", r.Title,
		"chunks", len(chunks),
	)

	notes := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChunks)
	for i, chunk := range chunks {
		g.Go(func() error {
			prompt := prompts.VideoChunkNotesPrompt(question, chunk, i+1, len(chunks))
			out, err := c.cfg.Complete(gctx, prompt)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i+1, err)
			}
			notes[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("map phase: %w", err)
	}

	var kept []string
	for i, n := range notes {
		if n == "" || strings.EqualFold(strings.Trim(n, ". "), nothingRelevant) {
			continue
		}
		kept = append(kept, fmt.Sprintf("[part %d]\n%s", i+1, n))
	}
	material := strings.Join(kept, "\n\n---\n\n")
	if material == "" {
		material = "(no part of the transcript was relevant to the question)"
	}

	c.logger.Debug("running reduce phase",
		"relevant_parts", len(kept),
		"material_len", len(material),
	)

	answer, err := c.cfg.Complete(ctx, prompts.VideoAnswerPrompt(r.Title, question, material))
	if err != nil {
		return "", fmt.Errorf("reduce phase: %w", err)
	}
	return answer, nil
}
