// Package status implements the tree-shaped introspection sink threaded
// through every long-lived component's Status method (see
// paxos/acceptor.go's Acceptor.Status, which Emits a handful of lines then
// Forks one child consumer per sub-component before Join-ing). This shape
// mirrors goshawkdb.io/server/utils/status's StatusConsumer, inferred from
// its call sites rather than its source: Emit appends a line, Fork hands a
// sub-component its own indented child, and Join blocks the parent until
// every child it forked has reported.
package status

import (
	"fmt"
	"strings"
	"sync"
)

// Consumer collects Status() output as an indented tree.
type Consumer struct {
	mu     sync.Mutex
	depth  int
	lines  *[]string
	parent *Consumer
	wg     sync.WaitGroup // outstanding children forked from this consumer
}

// NewConsumer returns a root consumer.
func NewConsumer() *Consumer {
	lines := make([]string, 0, 16)
	return &Consumer{lines: &lines}
}

// Emit appends one line at the consumer's current indentation.
func (c *Consumer) Emit(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.lines = append(*c.lines, strings.Repeat("  ", c.depth)+line)
}

// Emitf is a Printf-style convenience.
func (c *Consumer) Emitf(format string, args ...interface{}) {
	c.Emit(fmt.Sprintf(format, args...))
}

// Fork returns a child consumer, indented one level deeper, sharing the
// same underlying line buffer. The parent's next Join blocks until this
// child (and every other outstanding fork) calls its own Join.
func (c *Consumer) Fork() *Consumer {
	c.wg.Add(1)
	return &Consumer{
		lines:  c.lines,
		depth:  c.depth + 1,
		parent: c,
	}
}

// Join waits for this consumer's own forked children to report, then (if
// this consumer was itself a fork) marks itself done to its parent.
func (c *Consumer) Join() {
	c.wg.Wait()
	if c.parent != nil {
		c.parent.wg.Done()
	}
}

// String renders the accumulated tree. Callers should Join before calling
// String to ensure every forked child has reported.
func (c *Consumer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(*c.lines, "\n")
}
