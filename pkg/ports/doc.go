/*
Package ports defines the driven ports (interfaces) for the ui-morn engine.

These interfaces decouple the event logs from the backends that mirror them,
allowing the engine to export events to memory, Redis streams, or anything
else that can append and read back in order.

# Key Interfaces

  - EventSink: receives a copy of every appended event.
  - EventReader: reads an owner's mirrored events back in append order.
  - MirrorStore: both of the above; RunMirrorStoreContract checks an implementation.
*/
package ports
