/*
Package domain contains the core types shared by the ui-morn event engine.

It defines the immutable events that flow through an owner's log, the parts
carried by those events, and the sentinel errors returned across packages.
The package has no I/O and no dependencies beyond the standard library.

# Key Entities

  - Event: one record of an owner's log, identified by its sequence.
  - Part: a text, file, or data fragment of an event payload or message.
  - Message: an inbound request from a client that starts or steers a task.
  - Decision: the outcome of an approval request.
*/
package domain
