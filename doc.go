/*
Package uimorn is a resumable event engine for agent user interfaces.

Every unit of work (a task, or a tool-call session) owns an append-only log of
events. Clients stream that log over Server-Sent Events, drop the connection at
any point, and resume from the last sequence they processed. Long running work
can pause on an approval and continue once a decision arrives out of band.

# Concept

An Owner is a task or a session. Each owner holds:

  - an event log with gap-free sequences starting at 1,
  - a set of live subscribers fed without blocking the producer,
  - for tasks, a single approval slot and a completion flag.

The orchestrator runs under a supervisor, detached from the request that
started it. Errors and panics become a terminal "error" event, cancellation a
"canceled" event, and the task is completed on every path so no stream hangs.

# Usage

	package main

	import (
		"context"
		"log"

		uimorn "github.com/venikman/ui-morn"
		"github.com/venikman/ui-morn/pkg/domain"
	)

	func main() {
		eng := uimorn.New()

		msg := domain.Message{Role: "user", Parts: []domain.Part{domain.TextPart("Plan the launch")}}
		t, err := eng.StartTask(context.Background(), msg)
		if err != nil {
			log.Fatal(err)
		}

		sub, err := t.Subscribe(0)
		if err != nil {
			log.Fatal(err)
		}
		defer sub.Cancel()

		for {
			ev, err := sub.Next(context.Background())
			if err != nil {
				break // io.EOF once the task completes
			}
			log.Println(ev.Sequence, ev.Kind)
		}
	}

The HTTP transport in pkg/adapters/http exposes the same engine over SSE, and
pkg/adapters/mcp exposes it as an MCP server.
*/
package uimorn
