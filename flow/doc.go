// Package flow defines the declarative step graph driving the dialogue engine.
//
// A Graph holds the root menu (an explicit alias table mapping user input to
// flows or informational replies), the flows and their steps, the ticket
// schemes per record type and the canned reply texts. Graphs are loaded from
// YAML and validated up front: every step successor must exist, record flows
// must end in a confirm step and every prompt must be a valid template. The
// engine never branches on raw strings itself; it asks the graph.
package flow
