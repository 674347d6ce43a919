/*
Package session implements the session owner used by the JSON-RPC tool endpoint.

A session is an event log without completion semantics or an approval
barrier. Clients receive a server-assigned session id on first contact and
echo it on later calls to address the same log. Each tool call appends a
started, result, and done event; a pure resume replays the buffered tail
and never re-runs the tool.
*/
package session
