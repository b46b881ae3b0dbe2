package track

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"time"
)

// Event names a change category.
type Event string

// Change categories, in dispatch order.
const (
	EventRemoved Event = "removed"
	EventAdded   Event = "added"
	EventChanged Event = "changed"
	EventMoved   Event = "moved"
)

// Handler receives the changes found by each tick. Every callback gets the
// post-tick item; OnMoved items carry PreviousPath.
type Handler interface {
	OnAdded(item *Item)
	OnRemoved(item *Item)
	OnChanged(item *Item)
	OnMoved(item *Item)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Added   func(item *Item)
	Removed func(item *Item)
	Changed func(item *Item)
	Moved   func(item *Item)
}

func (h HandlerFuncs) OnAdded(item *Item) {
	if h.Added != nil {
		h.Added(item)
	}
}

func (h HandlerFuncs) OnRemoved(item *Item) {
	if h.Removed != nil {
		h.Removed(item)
	}
}

func (h HandlerFuncs) OnChanged(item *Item) {
	if h.Changed != nil {
		h.Changed(item)
	}
}

func (h HandlerFuncs) OnMoved(item *Item) {
	if h.Moved != nil {
		h.Moved(item)
	}
}

// EventFunc receives every change with its category.
type EventFunc func(event Event, item *Item)

// HandlerFromFunc routes all four callbacks into fn.
func HandlerFromFunc(fn EventFunc) Handler {
	return HandlerFuncs{
		Added:   func(item *Item) { fn(EventAdded, item) },
		Removed: func(item *Item) { fn(EventRemoved, item) },
		Changed: func(item *Item) { fn(EventChanged, item) },
		Moved:   func(item *Item) { fn(EventMoved, item) },
	}
}

// PrintHandler writes one human readable line per change.
type PrintHandler struct {
	Root string
	Out  io.Writer
}

// NewPrintHandler returns a PrintHandler writing to stdout.
func NewPrintHandler(root string) *PrintHandler {
	return &PrintHandler{Root: root, Out: os.Stdout}
}

func (h *PrintHandler) OnAdded(item *Item)   { h.print(item, "was added") }
func (h *PrintHandler) OnRemoved(item *Item) { h.print(item, "was removed") }
func (h *PrintHandler) OnChanged(item *Item) { h.print(item, "was changed") }
func (h *PrintHandler) OnMoved(item *Item) {
	h.print(item, "was moved from "+item.PreviousPath)
}

func (h *PrintHandler) print(item *Item, what string) {
	out := h.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintln(out, item.Describe(h.Root), what)
}

// FormatHandler writes each change rendered through template. See
// FormatEvent for the placeholders.
func FormatHandler(root, template string, out io.Writer) Handler {
	if out == nil {
		out = os.Stdout
	}
	return HandlerFromFunc(func(event Event, item *Item) {
		fmt.Fprintln(out, FormatEvent(template, root, event, item))
	})
}

// ExecHandler runs the command produced by template for each change. Errors
// and output go to errOut and out respectively.
func ExecHandler(ctx context.Context, root, template string, out, errOut io.Writer) Handler {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return HandlerFromFunc(func(event Event, item *Item) {
		cmdStr := FormatEvent(template, root, event, item)
		if err := executeCommand(ctx, cmdStr, out); err != nil {
			fmt.Fprintf(errOut, "exec %q: %v\n", cmdStr, err)
		}
	})
}

// FormatEvent replaces placeholders in template with values from item:
//
//	{}      relative path        {abs}   absolute path
//	{base}  base name            {dir}   relative parent directory
//	{event} change category      {type}  item type
//	{hash}  hex content hash     {time}  modification time (RFC 3339)
//	{prev}  previous path of a moved item
//
// {""}, {"abs"} and {"prev"} produce quoted values.
func FormatEvent(template, root string, event Event, item *Item) string {
	modTime := ""
	if !item.ModTime.IsZero() {
		modTime = item.ModTime.Format(time.RFC3339)
	}
	abs := item.AbsPath(root)

	str := template
	str = strings.ReplaceAll(str, `{""}`, strconv.Quote(item.Path))
	str = strings.ReplaceAll(str, `{"abs"}`, strconv.Quote(abs))
	str = strings.ReplaceAll(str, `{"prev"}`, strconv.Quote(item.PreviousPath))
	str = strings.ReplaceAll(str, "{}", item.Path)
	str = strings.ReplaceAll(str, "{abs}", abs)
	str = strings.ReplaceAll(str, "{base}", path.Base(item.Path))
	str = strings.ReplaceAll(str, "{dir}", path.Dir(item.Path))
	str = strings.ReplaceAll(str, "{event}", string(event))
	str = strings.ReplaceAll(str, "{type}", item.Type.String())
	str = strings.ReplaceAll(str, "{hash}", item.HexHash())
	str = strings.ReplaceAll(str, "{time}", modTime)
	str = strings.ReplaceAll(str, "{prev}", item.PreviousPath)
	return str
}

// executeCommand runs cmdStr split on whitespace and copies its stdout to out.
func executeCommand(ctx context.Context, cmdStr string, out io.Writer) error {
	args := strings.Fields(cmdStr)
	if len(args) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("command error: %s: %w", strings.TrimSpace(stderr.String()), err)
		}
		return err
	}

	if stdout.Len() > 0 {
		_, err := out.Write(stdout.Bytes())
		return err
	}
	return nil
}
