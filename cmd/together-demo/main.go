// Copyright 2026 The Together authors. All Rights Reserved.
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

// together-demo drives two in-process replicas of a collaborative
// document through a scripted concurrent editing session, exchanging
// operations and appending them to per-author signed logs, and shows
// the converging state in a small terminal UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/slightknack/together"
	"github.com/slightknack/together/keys"
	"github.com/slightknack/together/siglog"
)

var (
	edits    = flag.Int("edits", 200, "Number of edits each replica performs")
	interval = flag.Duration("interval", 25*time.Millisecond, "Delay between edits")
	seed     = flag.Int64("seed", 1, "Seed for the scripted edit stream")
	showUI   = flag.Bool("show_ui", true, "Set to false to run headless and print the outcome")
)

// replica owns one document, its author identity, and the signed log of
// everything it has said. The document itself is single-threaded; the
// mutex serializes the edit pump against incoming operations.
type replica struct {
	mu   sync.Mutex
	name string
	kp   keys.KeyPair
	doc  *together.RgaBuf
	log  *siglog.Log
	out  chan<- []byte
}

func (r *replica) edit(rng *rand.Rand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.doc.Len()
	if err != nil {
		return err
	}
	switch {
	case n > 0 && rng.Intn(4) == 0:
		pos := rng.Intn(n)
		length := 1 + rng.Intn(min(3, n-pos))
		if err := r.doc.Delete(pos, length); err != nil {
			return err
		}
	default:
		word := fmt.Sprintf("%s%d ", r.name, rng.Intn(100))
		if err := r.doc.Insert(r.kp.Public(), rng.Intn(n+1), []byte(word)); err != nil {
			return err
		}
	}
	return r.publish()
}

// publish flushes buffered edits, appends the resulting operations to
// the signed log, and hands their encodings to the peer.
func (r *replica) publish() error {
	ops, err := r.doc.Flush()
	if err != nil {
		return err
	}
	for _, op := range ops {
		raw := op.Encode()
		r.log.Append(raw)
		r.out <- raw
	}
	return nil
}

func (r *replica) receive(raw []byte) error {
	op, err := together.DecodeOperation(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.doc.Apply(op); err != nil && !together.IsDeferred(err) {
		return err
	}
	return nil
}

func (r *replica) status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, err := r.doc.String()
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	inner, err := r.doc.Inner()
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	signed := r.log.Sign()
	return fmt.Sprintf("len=%d spans=%d log=%d blocks verified=%t\n\n%s",
		inner.Len(), inner.SpanCount(), signed.Length, signed.Verify(), text)
}

func mustReplica(name string, out chan<- []byte) *replica {
	kp, err := keys.Generate(nil)
	if err != nil {
		klog.Exitf("Failed to generate %s's keypair: %v", name, err)
	}
	return &replica{
		name: name,
		kp:   kp,
		doc:  together.NewBuf(together.New()),
		log:  siglog.New(kp),
		out:  out,
	}
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aToB := make(chan []byte, 1024)
	bToA := make(chan []byte, 1024)
	alice := mustReplica("alice", aToB)
	bob := mustReplica("bob", bToA)

	g, ctx := errgroup.WithContext(ctx)
	pump := func(r *replica, in <-chan []byte, seed int64) func() error {
		return func() error {
			rng := rand.New(rand.NewSource(seed))
			done := 0
			ticker := time.NewTicker(*interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case raw := <-in:
					if err := r.receive(raw); err != nil {
						return fmt.Errorf("%s receive: %w", r.name, err)
					}
				case <-ticker.C:
					if done >= *edits {
						// Keep draining the peer until both sides finish.
						continue
					}
					if err := r.edit(rng); err != nil {
						return fmt.Errorf("%s edit: %w", r.name, err)
					}
					done++
				}
			}
		}
	}
	g.Go(pump(alice, bToA, *seed))
	g.Go(pump(bob, aToB, *seed+1))

	if !*showUI {
		time.Sleep(time.Duration(*edits+10) * *interval)
		cancel()
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			klog.Exitf("Pump failed: %v", err)
		}
		fmt.Printf("alice: %s\n\nbob: %s\n", alice.status(), bob.status())
		return
	}

	app := tview.NewApplication()
	grid := tview.NewGrid()
	grid.SetRows(0, 0, 3).SetColumns(0).SetBorders(true)

	aliceView := tview.NewTextView()
	grid.AddItem(aliceView, 0, 0, 1, 1, 0, 0, false)
	bobView := tview.NewTextView()
	grid.AddItem(bobView, 1, 0, 1, 1, 0, 0, false)
	helpView := tview.NewTextView()
	helpView.SetText("two replicas editing concurrently; q or Esc to quit")
	grid.AddItem(helpView, 2, 0, 1, 1, 0, 0, false)
	app.SetRoot(grid, true)

	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a := "alice: " + alice.status()
				b := "bob: " + bob.status()
				app.QueueUpdateDraw(func() {
					aliceView.SetText(strings.TrimSpace(a))
					bobView.SetText(strings.TrimSpace(b))
				})
			}
		}
	}()

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == 'q' {
			cancel()
			app.Stop()
		}
		return event
	})
	if err := app.Run(); err != nil {
		klog.Exitf("UI failed: %v", err)
	}
	cancel()
	_ = g.Wait()
}
