/*
Package eventlog implements the per-owner event log and its broadcast hub.

A Log assigns gap-free sequence numbers to appended events, keeps them for
replay, and fans each new event out to live subscribers. Subscribing with a
cursor replays every retained event after it and joins the live feed in the
same critical section, so no event is lost or duplicated at the seam.

Delivery to subscribers never blocks the producer. Each subscriber owns a
bounded queue; a subscriber whose queue overflows is disconnected and
observes ErrSlowConsumer, after which it can resubscribe from its cursor.
*/
package eventlog
