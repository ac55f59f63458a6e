// Package flows contains the workflows served by cmd/stepflow.
//
//   - Counter: a router that delegates to one of two nested, self-looping
//     graphs.
//   - Delegation: a cheap agent answers, a critique scores the answer, and a
//     tool-equipped agent retries when the score is too low.
//   - Content: a planner, writer and editor pipeline that turns a request
//     into a blog post.
//   - MultiAgent: a team of agents answering in turn over one shared
//     conversation, the last one giving the final answer.
//   - Research: search, answer and score in a self-loop that rewrites the
//     query until an answer is accepted or the passes run out.
//
// Every constructor returns a *workflow.Graph; model-backed flows take their
// llm.Model and tools as arguments so tests can script them.
package flows
