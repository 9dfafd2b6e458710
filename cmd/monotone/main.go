// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides the entry point for the monotone CLI.
//
// It is a thin, stdlib-flag-based dispatcher over the two public
// contracts: `counter` and `queue`. It exists mainly as an operational
// smoke-test tool — poke a counter or queue row from a terminal without
// writing Go — and as a reference caller of the DynamoDB, SQL and in-memory
// local backends (the Redis adapter is not selectable here).
//
// The global flags come before the entity word:
//
//	monotone --id ID [--backend dynamodb|sql|local] [--region R] [--table T] counter {get|next|rm}
//	monotone --id ID [--backend ...] queue [--process PID] {get|list|join [--tag K=V ...]|leave|rm}
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"github.com/cmsd2/monotone/internal/monotone/backoff"
	"github.com/cmsd2/monotone/internal/monotone/engine"
	"github.com/cmsd2/monotone/internal/monotone/kv"
	dynamoadapter "github.com/cmsd2/monotone/internal/monotone/kv/dynamo"
	sqladapter "github.com/cmsd2/monotone/internal/monotone/kv/sql"
	"github.com/cmsd2/monotone/internal/monotone/local"
	"github.com/cmsd2/monotone/pkg/monotone"
)

const (
	defaultRegion = "eu-west-1"
	defaultTable  = "Counters"
)

// errMissingArgument and errInvalidTag are the CLI-layer sentinel errors
// spec.md §7 names alongside the library's own Kind enum.
var (
	errMissingArgument = fmt.Errorf("missing required argument")
	errInvalidTag      = fmt.Errorf("invalid tag, expected KEY=VALUE")
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Printf("monotone: %v", err)
		os.Exit(1)
	}
}

// tagList accumulates repeated --tag KEY=VALUE flags, the way a
// clap multi-value argument would, expressed as flag.Value.
type tagList struct{ tags monotone.Tags }

func (t *tagList) String() string { return "" }
func (t *tagList) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("%w: %q", errInvalidTag, s)
	}
	if t.tags == nil {
		t.tags = monotone.Tags{}
	}
	t.tags[k] = v
	return nil
}

func run(args []string) error {
	global := flag.NewFlagSet("monotone", flag.ContinueOnError)
	backendName := global.String("backend", "local", "backend to use: dynamodb, sql, or local")
	region := global.String("region", defaultRegion, "backend region (dynamodb only)")
	table := global.String("table", defaultTable, "table/namespace name")
	id := global.String("id", "", "counter or queue row id (required)")
	sqlDriver := global.String("sql-driver", "", "database/sql driver name, registered by the caller's build (sql backend only)")
	sqlDSN := global.String("sql-dsn", "", "database/sql data source name (sql backend only)")
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return fmt.Errorf("%w: entity (counter|queue)", errMissingArgument)
	}
	if *id == "" {
		global.Usage()
		return fmt.Errorf("%w: --id", errMissingArgument)
	}

	entity := rest[0]
	rest = rest[1:]
	ctx := context.Background()

	if *backendName == "local" {
		store := local.NewStore(nil)
		switch entity {
		case "counter":
			return runCounter(ctx, store.Counter(*id), rest, *id, *region, *table)
		case "queue":
			return runQueueEntity(ctx, store.Queue, rest, *id, *region, *table)
		default:
			global.Usage()
			return fmt.Errorf("%w: unrecognised entity %q", errMissingArgument, entity)
		}
	}

	adapter, err := buildAdapter(ctx, *backendName, *region, *table, *sqlDriver, *sqlDSN)
	if err != nil {
		return err
	}

	switch entity {
	case "counter":
		counter := engine.NewCounter(adapter, *id, backoff.DefaultPolicy())
		return runCounter(ctx, counter, rest, *id, *region, *table)
	case "queue":
		newQueue := func(id string) monotone.MonotonicQueue {
			return engine.NewQueue(adapter, id, backoff.DefaultPolicy(), nil)
		}
		return runQueueEntity(ctx, newQueue, rest, *id, *region, *table)
	default:
		global.Usage()
		return fmt.Errorf("%w: unrecognised entity %q", errMissingArgument, entity)
	}
}

// buildAdapter constructs the remote kv.Adapter named by backendName,
// provisioning and awaiting readiness of its namespace first — mirroring
// the original source's run_counter/run_queue, which always ensure the
// table before touching a row.
func buildAdapter(ctx context.Context, backendName, region, table, sqlDriver, sqlDSN string) (kv.Adapter, error) {
	switch backendName {
	case "dynamodb":
		sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
		if err != nil {
			return nil, fmt.Errorf("dynamodb session: %w", err)
		}
		client := dynamodb.New(sess)
		adapter := dynamoadapter.New(client, table)
		if err := adapter.EnsureNamespace(ctx, table, 5, 5); err != nil {
			return nil, err
		}
		if err := adapter.AwaitNamespaceReady(ctx, table); err != nil {
			return nil, err
		}
		return adapter, nil
	case "sql":
		if sqlDriver == "" || sqlDSN == "" {
			return nil, fmt.Errorf("%w: --sql-driver and --sql-dsn", errMissingArgument)
		}
		db, err := sql.Open(sqlDriver, sqlDSN)
		if err != nil {
			return nil, fmt.Errorf("sql open: %w", err)
		}
		return sqladapter.New(db), nil
	default:
		return nil, fmt.Errorf("unrecognised backend %q", backendName)
	}
}

// counterValue is the output shape for `counter get|next`, per spec.md
// §6.3: the fencing token is not surfaced on the counter path, since it
// is always equal to value.
type counterValue struct {
	ID     string `json:"id"`
	Region string `json:"region"`
	Table  string `json:"table"`
	Value  uint64 `json:"value"`
}

func runCounter(ctx context.Context, counter monotone.MonotonicCounter, args []string, id, region, table string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: counter operation (get|next|rm)", errMissingArgument)
	}
	switch args[0] {
	case "get":
		v, err := counter.GetValue(ctx)
		if err != nil {
			return err
		}
		return printJSON(counterValue{ID: id, Region: region, Table: table, Value: v})
	case "next":
		v, err := counter.NextValue(ctx)
		if err != nil {
			return err
		}
		return printJSON(counterValue{ID: id, Region: region, Table: table, Value: v})
	case "rm":
		if err := counter.Remove(ctx); err != nil {
			return err
		}
		return printJSON(counterValue{ID: id, Region: region, Table: table, Value: 0})
	default:
		return fmt.Errorf("%w: unrecognised counter operation %q", errMissingArgument, args[0])
	}
}

// queueTicket and queueTicketOutput/queueTicketListOutput mirror spec.md
// §6.3's `{id, region, table, fencing_token, ticket|tickets?}` shape.
type queueTicket struct {
	ProcessID string            `json:"process_id"`
	Counter   uint64            `json:"counter"`
	Position  int               `json:"position"`
	Tags      map[string]string `json:"tags,omitempty"`
}

type queueTicketOutput struct {
	ID           string      `json:"id"`
	Region       string      `json:"region"`
	Table        string      `json:"table"`
	FencingToken uint64      `json:"fencing_token"`
	Ticket       queueTicket `json:"ticket"`
}

type queueTicketListOutput struct {
	ID           string        `json:"id"`
	Region       string        `json:"region"`
	Table        string        `json:"table"`
	FencingToken uint64        `json:"fencing_token"`
	Tickets      []queueTicket `json:"tickets"`
}

type queueEmptyOutput struct {
	ID           string `json:"id"`
	Region       string `json:"region"`
	Table        string `json:"table"`
	FencingToken uint64 `json:"fencing_token"`
}

func toQueueTicket(t monotone.Ticket) queueTicket {
	return queueTicket{ProcessID: t.ProcessID, Counter: t.Counter, Position: t.Position, Tags: t.Tags}
}

// runQueueEntity parses the queue subcommand's own flags (--process,
// repeated --tag on join) and dispatches to the operation.
func runQueueEntity(ctx context.Context, newQueue func(id string) monotone.MonotonicQueue, args []string, id, region, table string) error {
	queueFlags := flag.NewFlagSet("queue", flag.ContinueOnError)
	processID := queueFlags.String("process", "", "process id for get/join/leave")
	if err := queueFlags.Parse(args); err != nil {
		return err
	}
	rest := queueFlags.Args()
	queue := newQueue(id)

	if len(rest) == 0 {
		return fmt.Errorf("%w: queue operation (get|list|join|leave|rm)", errMissingArgument)
	}

	switch rest[0] {
	case "get":
		if *processID == "" {
			return fmt.Errorf("%w: --process", errMissingArgument)
		}
		token, ticket, err := queue.GetTicket(ctx, *processID)
		if err != nil {
			return err
		}
		return printJSON(queueTicketOutput{ID: id, Region: region, Table: table, FencingToken: token, Ticket: toQueueTicket(ticket)})
	case "list":
		token, tickets, err := queue.GetTickets(ctx)
		if err != nil {
			return err
		}
		out := make([]queueTicket, len(tickets))
		for i, t := range tickets {
			out[i] = toQueueTicket(t)
		}
		return printJSON(queueTicketListOutput{ID: id, Region: region, Table: table, FencingToken: token, Tickets: out})
	case "join":
		if *processID == "" {
			return fmt.Errorf("%w: --process", errMissingArgument)
		}
		joinFlags := flag.NewFlagSet("join", flag.ContinueOnError)
		var tags tagList
		joinFlags.Var(&tags, "tag", "KEY=VALUE, repeatable")
		if err := joinFlags.Parse(rest[1:]); err != nil {
			return err
		}
		token, ticket, err := queue.Join(ctx, *processID, tags.tags)
		if err != nil {
			return err
		}
		return printJSON(queueTicketOutput{ID: id, Region: region, Table: table, FencingToken: token, Ticket: toQueueTicket(ticket)})
	case "leave":
		if *processID == "" {
			return fmt.Errorf("%w: --process", errMissingArgument)
		}
		token, err := queue.Leave(ctx, *processID)
		if err != nil {
			return err
		}
		return printJSON(queueEmptyOutput{ID: id, Region: region, Table: table, FencingToken: token})
	case "rm":
		if err := queue.Remove(ctx); err != nil {
			return err
		}
		return printJSON(queueEmptyOutput{ID: id, Region: region, Table: table})
	default:
		return fmt.Errorf("%w: unrecognised queue operation %q", errMissingArgument, rest[0])
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(v)
}
