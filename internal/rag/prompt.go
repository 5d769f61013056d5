package rag

import "strings"

// NoContext is the context used when the store holds no passages.
const NoContext = "No context available."

// BuildPrompt substitutes context and question into the fixed answering template:
//
//	Use the context below to answer the question clearly and directly.
//
//	Context:
//	<context>
//
//	Question:
//	<question>
//
//	Answer:
func BuildPrompt(context, question string) string {
	var b strings.Builder
	b.Grow(len(context) + len(question) + 96)
	b.WriteString("Use the context below to answer the question clearly and directly.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
