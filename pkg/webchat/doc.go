// Package webchat is a development backend that speaks the chat widget's
// wire protocol.
//
// Routes:
//   - POST /chat answers a chat turn, either as {message, threadId} JSON or,
//     in streaming mode, as text chunks followed by 0x1F and the thread id.
//     The thread id is also sent in the x-thread-id header.
//   - POST /history returns the stored thread document for {threadId}.
//   - POST /history/update replaces the stored thread document.
//   - GET /threads lists stored threads.
//
// Replies come from a Responder. Completed exchanges are published on the
// TopicExchanges watermill topic.
package webchat
