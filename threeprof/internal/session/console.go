package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/3jsLive/tasks/threeprof/result"
)

// scrubber replaces every occurrence of the base URL with "HOST/".
type scrubber struct{ base string }

func newScrubber(baseURL string) scrubber {
	return scrubber{base: strings.TrimRight(baseURL, "/") + "/"}
}

func (s scrubber) apply(text string) string {
	if s.base == "/" {
		return text
	}
	return strings.ReplaceAll(text, s.base, "HOST/")
}

// consoleLog collects console calls and uncaught exceptions in arrival order.
type consoleLog struct {
	scrub scrubber

	mu     sync.Mutex
	events []result.ConsoleEvent
}

func newConsoleLog(baseURL string) *consoleLog {
	return &consoleLog{scrub: newScrubber(baseURL)}
}

func (c *consoleLog) consoleCalled(e *proto.RuntimeConsoleAPICalled) {
	texts := make([]string, 0, len(e.Args))
	handles := make([]string, 0, len(e.Args))
	for _, a := range e.Args {
		texts = append(texts, remoteText(a))
		handles = append(handles, remoteHandle(a))
	}

	loc := ":0:0"
	if e.StackTrace != nil && len(e.StackTrace.CallFrames) > 0 {
		f := e.StackTrace.CallFrames[0]
		loc = fmt.Sprintf("%s:%d:%d", f.URL, f.LineNumber, f.ColumnNumber)
	}

	c.push(result.ConsoleEvent{
		Type: "console",
		Msg: result.ConsoleMessage{
			Type:     string(e.Type),
			Text:     c.scrub.apply(strings.Join(texts, " ")),
			Location: c.scrub.apply(loc),
			Args:     c.scrub.apply(strings.Join(handles, " ")),
		},
	})
}

func (c *consoleLog) exceptionThrown(e *proto.RuntimeExceptionThrown) {
	name, text := "Error", ""
	if d := e.ExceptionDetails; d != nil {
		text = d.Text
		if ex := d.Exception; ex != nil {
			if ex.ClassName != "" {
				name = ex.ClassName
			}
			if ex.Description != "" {
				first, _, _ := strings.Cut(ex.Description, "\n")
				text = strings.TrimPrefix(first, name+": ")
			} else if !ex.Value.Nil() {
				text = ex.Value.Str()
			}
		}
	}
	c.push(result.ConsoleEvent{
		Type: "pageerror",
		Msg: result.ConsoleMessage{
			Name: c.scrub.apply(name),
			Text: c.scrub.apply(text),
		},
	})
}

func (c *consoleLog) push(ev result.ConsoleEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *consoleLog) snapshot() []result.ConsoleEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]result.ConsoleEvent{}, c.events...)
}

// remoteText renders an argument the way the console prints it.
func remoteText(o *proto.RuntimeRemoteObject) string {
	switch {
	case o == nil:
		return ""
	case o.UnserializableValue != "":
		return string(o.UnserializableValue)
	case o.Type == proto.RuntimeRemoteObjectTypeUndefined:
		return "undefined"
	case o.Type == proto.RuntimeRemoteObjectTypeString:
		return o.Value.Str()
	case o.Type != proto.RuntimeRemoteObjectTypeObject && !o.Value.Nil():
		return o.Value.JSON("", "")
	}
	return o.Description
}

// remoteHandle renders an argument as a handle: primitives by value,
// objects by subtype or type.
func remoteHandle(o *proto.RuntimeRemoteObject) string {
	if o == nil {
		return ""
	}
	if o.Type == proto.RuntimeRemoteObjectTypeObject || o.Type == proto.RuntimeRemoteObjectTypeFunction {
		if o.Subtype != "" {
			return "JSHandle@" + string(o.Subtype)
		}
		return "JSHandle@" + string(o.Type)
	}
	return "JSHandle:" + remoteText(o)
}
