package logx

//
// apex/log handler
//

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
)

// Handler implements [log.Handler] writing one line per entry with the
// seconds elapsed since the handler was created.
type Handler struct {
	colors map[log.Level]*color.Color
	mu     sync.Mutex
	start  time.Time
	w      io.Writer
}

var _ log.Handler = &Handler{}

// NewHandler creates a [Handler] writing to w. When w is a terminal
// the level is colourised.
func NewHandler(w io.Writer) *Handler {
	useColors := false
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = colorable.NewColorable(f)
		useColors = true
	}
	colors := map[log.Level]*color.Color{
		log.DebugLevel: color.New(color.FgWhite),
		log.InfoLevel:  color.New(color.FgBlue),
		log.WarnLevel:  color.New(color.FgYellow),
		log.ErrorLevel: color.New(color.FgRed),
		log.FatalLevel: color.New(color.FgRed, color.Bold),
	}
	for _, c := range colors {
		if useColors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return &Handler{
		colors: colors,
		mu:     sync.Mutex{},
		start:  time.Now(),
		w:      w,
	}
}

// HandleLog implements log.Handler.
func (h *Handler) HandleLog(e *log.Entry) error {
	level := e.Level.String()
	if c, found := h.colors[e.Level]; found {
		level = c.Sprint(level)
	}
	s := fmt.Sprintf("[%14.6f] <%s> %s", e.Timestamp.Sub(h.start).Seconds(), level, e.Message)
	if len(e.Fields) > 0 {
		names := e.Fields.Names()
		sort.Strings(names)
		for _, name := range names {
			s += fmt.Sprintf(" %s=%v", name, e.Fields.Get(name))
		}
	}
	s += "\n"
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, s)
	return err
}
