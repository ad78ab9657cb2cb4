package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/manslikestiffler/smart-granary/pkg/parser"
)

// Broadcaster fans serial events out to connected clients
type Broadcaster interface {
	BroadcastJSON(v interface{})
}

// Forwarder sends temperature readings on to the dashboard server
type Forwarder interface {
	PostReading(ctx context.Context, r models.Reading) error
}

// Bridge relays controller lines to websocket clients
type Bridge struct {
	broadcaster Broadcaster
	forwarder   Forwarder
	now         func() time.Time

	lines     atomic.Int64
	forwarded atomic.Int64
}

// NewBridge creates a bridge. forwarder may be nil.
func NewBridge(broadcaster Broadcaster, forwarder Forwarder) *Bridge {
	return &Bridge{
		broadcaster: broadcaster,
		forwarder:   forwarder,
		now:         time.Now,
	}
}

// Run reads lines from r until EOF or ctx is done. Unrecognized lines are
// logged and dropped.
func (b *Bridge) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read serial input: %w", err)
					}
				default:
				}
				return nil
			}
			b.handleLine(ctx, line)
		}
	}
}

func (b *Bridge) handleLine(ctx context.Context, line string) {
	if line == "" {
		return
	}
	b.lines.Add(1)

	event, err := parser.ParseLine(line, b.now().UTC())
	if errors.Is(err, parser.ErrUnrecognizedLine) {
		log.Printf("⚠ Ignoring serial line: %q", line)
		return
	}
	if err != nil {
		log.Printf("❌ Failed to parse serial line %q: %v", line, err)
		return
	}

	b.broadcaster.BroadcastJSON(event)

	if event.Kind == parser.EventReading && event.Reading != nil && b.forwarder != nil {
		if err := b.forwarder.PostReading(ctx, *event.Reading); err != nil {
			log.Printf("❌ Failed to forward reading: %v", err)
			return
		}
		b.forwarded.Add(1)
	}
}

// Stats returns the number of lines handled and readings forwarded
func (b *Bridge) Stats() (lines, forwarded int64) {
	return b.lines.Load(), b.forwarded.Load()
}
