package symtab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	log "github.com/rs/zerolog"
)

// FuncUnknown is the synthetic function name carried by degraded frames.
const FuncUnknown = "unknown"

// Frame is one resolved call chain entry.
type Frame struct {
	Address  uint64
	Module   string
	Function string
	Offset   uint64
	File     string
	Line     int
}

// Unknown reports whether the frame could not be mapped to a symbol.
func (f Frame) Unknown() bool {
	return f.Function == FuncUnknown
}

// String renders the frame for the folded stack format. Unresolved
// frames fall back to the hex instruction pointer address.
func (f Frame) String() string {
	if f.Unknown() {
		return fmt.Sprintf("0x%016x", f.Address)
	}
	if f.Offset > 0 {
		return fmt.Sprintf("%s+%#x", f.Function, f.Offset)
	}

	return f.Function
}

// Session owns the symbol resolution state of one attached process: the
// executable module list parsed from its memory map and the per-module
// ELF symbol tables. The module list is parsed once at attach time;
// libraries dlopen'd afterwards are invisible until Refresh is called.
type Session struct {
	pid     int
	modules []*Module
	cache   map[uint64]Frame
	closed  bool

	*SessionOptions
}

type SessionOptions struct {
	withLines bool
	logger    log.Logger
}

type SessionOption func(*Session)

func WithSessionSourceLines(withLines bool) SessionOption {
	return func(s *Session) {
		s.withLines = withLines
	}
}

func WithSessionLogger(logger log.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// Attach builds a Session for a live process. It fails with ErrAttach
// when the process memory map cannot be read, either because the process
// is gone or because the caller lacks permission.
func Attach(pid int, opts ...SessionOption) (*Session, error) {
	session := &Session{
		pid:            pid,
		cache:          make(map[uint64]Frame),
		SessionOptions: &SessionOptions{},
	}
	for _, opt := range opts {
		opt(session)
	}

	if err := session.loadModules(); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *Session) loadModules() error {
	proc, err := procfs.NewProc(s.pid)
	if err != nil {
		return errors.Wrapf(ErrAttach, "pid %d: %v", s.pid, err)
	}

	maps, err := proc.ProcMaps()
	if err != nil {
		return errors.Wrapf(ErrAttach, "reading memory map of pid %d: %v", s.pid, err)
	}

	modules := make([]*Module, 0, len(maps))
	for _, m := range maps {
		if m.Perms == nil || !m.Perms.Execute {
			continue
		}
		// Skip anonymous and pseudo mappings such as [vdso].
		if m.Pathname == "" || strings.HasPrefix(m.Pathname, "[") {
			continue
		}
		modules = append(modules, newModule(
			m.Pathname,
			uint64(m.StartAddr),
			uint64(m.EndAddr),
			uint64(m.Offset),
		))
	}
	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Start < modules[j].Start
	})

	s.modules = modules
	s.logger.Debug().Int("pid", s.pid).Int("modules", len(modules)).Msg("module map loaded")

	return nil
}

// Refresh re-reads the process memory map, picking up modules loaded
// after attach. The resolution cache is dropped because a module may
// have been mapped over a previously resolved range.
func (s *Session) Refresh() error {
	if s.closed {
		return ErrSessionClosed
	}

	for _, m := range s.modules {
		m.close()
	}
	s.cache = make(map[uint64]Frame)

	return s.loadModules()
}

// Resolve maps an instruction address to a Frame. It always succeeds
// structurally: addresses outside any module, or inside a module without
// usable symbols, yield a degraded frame carrying the raw address.
func (s *Session) Resolve(addr uint64) Frame {
	if frame, ok := s.cache[addr]; ok {
		return frame
	}

	frame := s.resolve(addr)
	s.cache[addr] = frame

	return frame
}

func (s *Session) resolve(addr uint64) Frame {
	frame := Frame{Address: addr, Function: FuncUnknown}

	module := s.findModule(addr)
	if module == nil {
		return frame
	}
	frame.Module = module.Path

	if err := module.load(s.withLines); err != nil {
		s.logger.Debug().Err(err).Str("module", module.Path).Msg("error loading module symbols")
		return frame
	}

	name, offset, err := module.lookup(addr)
	if err != nil {
		s.logger.Debug().Uint64("addr", addr).Str("module", module.Path).Msg("symbol not found")
		return frame
	}

	frame.Function = demangle.Filter(name)
	frame.Offset = offset
	if s.withLines {
		frame.File, frame.Line = module.sourceLine(addr)
	}

	return frame
}

func (s *Session) findModule(addr uint64) *Module {
	i := sort.Search(len(s.modules), func(i int) bool {
		return s.modules[i].End > addr
	})
	if i < len(s.modules) && s.modules[i].contains(addr) {
		return s.modules[i]
	}

	return nil
}

// Modules returns the executable modules mapped at attach (or last
// Refresh) time.
func (s *Session) Modules() []*Module {
	return s.modules
}

// PID returns the attached process ID.
func (s *Session) PID() int {
	return s.pid
}

// Close releases the per-module ELF handles. The session must not be
// used afterwards.
func (s *Session) Close() {
	s.closed = true
	for _, m := range s.modules {
		m.close()
	}
	s.modules = nil
	s.cache = nil
}
