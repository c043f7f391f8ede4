package service

import (
	"fmt"
	"strings"

	"github.com/xxxsen/booktutor/internal/model"
)

const systemPrompt = "You are an AI assistant for a Physical AI & Humanoid Robotics textbook. " +
	"Provide accurate, educational responses based on the provided textbook content. " +
	"Cite sources when possible and maintain academic rigor. " +
	"If the information is not in the provided context, say so explicitly."

const (
	fallbackSource  = "fallback"
	fallbackContent = "Fallback response due to system issue"
	fallbackScore   = 0.5

	selectedTextSource = "selected_text"
	snippetRunes       = 200
	citationRunes      = 150
)

func buildUserPrompt(query string, chunks []model.RetrievedChunk, history []model.ConversationTurn) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history {
			sb.WriteString("Student: ")
			sb.WriteString(turn.Query)
			sb.WriteString("\nAssistant: ")
			sb.WriteString(turn.Response)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	sb.WriteString("Context:\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPlease provide a comprehensive answer based on the context, citing sources when possible.")
	return sb.String()
}

func fallbackText(query string) string {
	return fmt.Sprintf("I received your query: '%s'. Due to a temporary issue with the AI service, "+
		"I cannot provide a detailed answer right now. Please try again later or consult the relevant textbook chapters directly.", query)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
