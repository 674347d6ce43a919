/*
Package observability provides Prometheus collectors for the ui-morn engine.

Collectors are attached through the hook structs exposed by the event log,
the approval barrier, and the supervisor, so the core packages stay free of
metrics dependencies. A nil *Metrics yields empty hooks.
*/
package observability
