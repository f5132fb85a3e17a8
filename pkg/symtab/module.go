package symtab

import (
	"debug/dwarf"
	"debug/elf"
	"sort"

	"github.com/pkg/errors"
)

// Module is one executable mapping of the target process, backed by the
// ELF file it was loaded from. Symbols are loaded lazily on the first
// lookup and kept sorted by address so that resolution is a binary
// search, not a scan.
type Module struct {
	Path  string
	Start uint64
	End   uint64

	offset uint64

	loaded  bool
	loadErr error
	file    *elf.File
	syms    []elf.Symbol
	bias    uint64
	dwarf   *dwarf.Data
}

func newModule(path string, start, end, offset uint64) *Module {
	return &Module{
		Path:   path,
		Start:  start,
		End:    end,
		offset: offset,
	}
}

func (m *Module) contains(addr uint64) bool {
	return addr >= m.Start && addr < m.End
}

// load opens the backing ELF file and merges .symtab and .dynsym into a
// single address-sorted function symbol table. Stripped binaries yield
// an empty table, which degrades lookups rather than failing them.
func (m *Module) load(withLines bool) error {
	if m.loaded {
		return m.loadErr
	}
	m.loaded = true

	file, err := elf.Open(m.Path)
	if err != nil {
		m.loadErr = errors.Wrapf(err, "error opening ELF file %s", m.Path)
		return m.loadErr
	}
	m.file = file
	m.bias = m.computeBias()

	syms, err := file.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		m.loadErr = errors.Wrap(err, "error reading ELF symtab section")
		return m.loadErr
	}
	dynSyms, err := file.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		m.loadErr = errors.Wrap(err, "error reading ELF dynsym section")
		return m.loadErr
	}

	funcs := make([]elf.Symbol, 0, len(syms)+len(dynSyms))
	for _, s := range append(syms, dynSyms...) {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
			continue
		}
		funcs = append(funcs, s)
	}
	sort.Slice(funcs, func(i, j int) bool {
		return funcs[i].Value < funcs[j].Value
	})
	m.syms = funcs

	if withLines {
		// Line info is best effort: binaries without DWARF still
		// resolve function names.
		if d, err := file.DWARF(); err == nil {
			m.dwarf = d
		}
	}

	return nil
}

// computeBias returns the difference between runtime and link-time
// addresses for this mapping, derived from the executable PT_LOAD
// segment backing the mapped file offset. Zero for ET_EXEC binaries.
func (m *Module) computeBias() uint64 {
	for _, prog := range m.file.Progs {
		if prog.Type != elf.PT_LOAD || prog.Flags&elf.PF_X == 0 {
			continue
		}
		if m.offset >= prog.Off && m.offset < prog.Off+prog.Filesz {
			return m.Start - (prog.Vaddr + (m.offset - prog.Off))
		}
	}

	return 0
}

// lookup maps a runtime instruction address to the nearest preceding
// function symbol. Symbols with a zero size (common in hand-written
// assembly) match any address up to the next symbol.
func (m *Module) lookup(addr uint64) (string, uint64, error) {
	if len(m.syms) == 0 {
		return "", 0, ErrSymNotFound
	}

	linkAddr := addr - m.bias
	i := sort.Search(len(m.syms), func(i int) bool {
		return m.syms[i].Value > linkAddr
	})
	if i == 0 {
		return "", 0, ErrSymNotFound
	}

	sym := m.syms[i-1]
	if sym.Size > 0 && linkAddr >= sym.Value+sym.Size {
		return "", 0, ErrSymNotFound
	}

	return sym.Name, linkAddr - sym.Value, nil
}

// sourceLine returns the source file and line covering the address, when
// the module carries DWARF line tables.
func (m *Module) sourceLine(addr uint64) (string, int) {
	if m.dwarf == nil {
		return "", 0
	}

	linkAddr := addr - m.bias
	reader := m.dwarf.Reader()
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			return "", 0
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := m.dwarf.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		var le dwarf.LineEntry
		if err := lr.SeekPC(linkAddr, &le); err == nil && le.File != nil {
			return le.File.Name, le.Line
		}
	}
}

func (m *Module) close() {
	if m.file != nil {
		m.file.Close()
		m.file = nil
	}
	m.syms = nil
	m.dwarf = nil
}
