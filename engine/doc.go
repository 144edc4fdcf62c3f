// Package engine implements the dialogue engine of intakemesh.
//
// The Engine turns one inbound core.Turn into exactly one core.Reply. It is
// a single state machine parameterized by a flow.Graph: every flow (report,
// status, awareness, chat, unfreeze) is data, not code.
//
// # Turn Processing
//
// Each turn runs under the per-identity lock of the session store:
//
//  1. Redelivered transport messages are recognised by message id and
//     acknowledged without touching the session.
//  2. The session is loaded (or created at WELCOME).
//  3. Global commands (MENU, CANCEL, RESET, RESTART, HELP) are handled in
//     any state.
//  4. At WELCOME the input is matched against the root menu, greetings and
//     the one-shot STATUS <ticket> command. Attachments without text start
//     media-first intake.
//  5. Inside a flow the input is dispatched on the current step kind
//     (choice, text, media, confirm, lookup, ask).
//  6. The mutated session is saved, or cleared when the turn returned to
//     WELCOME.
//
// # Failure Model
//
// Collaborators (classifier, assistant, media store, notifier) are best
// effort and degrade to fallbacks. A persistence failure at finalization
// keeps the session at its confirm step and tells the user to retry. A
// session that no longer matches the step graph is reset to WELCOME. Panics
// and store failures produce the generic apology.
//
// # Reply Delivery
//
// In synchronous mode the transport renders Reply.Text. With PushReplies
// the engine sends the text through the Notifier itself and marks the
// reply Delivered, falling back to the synchronous text when the push
// fails.
package engine
