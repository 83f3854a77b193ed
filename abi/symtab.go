package abi

import (
	"debug/elf"
	"os"
	"sort"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"guard/fault"
)

// symtab resolves a PC in instrumented (non-Go) code to a demangled
// symbol name by reading the running binary's own ELF .symtab, the way
// chkELF in the teacher's boot path reads an ELF header off the running
// kernel image -- here applied to /proc/self/exe instead of a boot
// payload, and kept purely for symbol lookup rather than validation.
type symtab struct {
	addrs []uint64
	sizes []uint64
	names []string
}

var (
	symtabOnce sync.Once
	theSymtab  *symtab
)

func loadSymtab() *symtab {
	symtabOnce.Do(func() {
		theSymtab = buildSymtab()
	})
	return theSymtab
}

func buildSymtab() *symtab {
	f, err := os.Open("/proc/self/exe")
	if err != nil {
		return nil
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return nil
	}
	defer ef.Close()

	syms, err := ef.Symbols()
	if err != nil {
		return nil
	}

	st := &symtab{}
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
			continue
		}
		st.addrs = append(st.addrs, s.Value)
		st.sizes = append(st.sizes, s.Size)
		st.names = append(st.names, s.Name)
	}
	if len(st.addrs) == 0 {
		return nil
	}

	idx := make([]int, len(st.addrs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return st.addrs[idx[i]] < st.addrs[idx[j]] })

	sorted := &symtab{
		addrs: make([]uint64, len(idx)),
		sizes: make([]uint64, len(idx)),
		names: make([]string, len(idx)),
	}
	for i, j := range idx {
		sorted.addrs[i] = st.addrs[j]
		sorted.sizes[i] = st.sizes[j]
		sorted.names[i] = st.names[j]
	}
	return sorted
}

func (st *symtab) lookup(pc uint64) (string, bool) {
	if st == nil || len(st.addrs) == 0 {
		return "", false
	}
	i := sort.Search(len(st.addrs), func(i int) bool { return st.addrs[i] > pc }) - 1
	if i < 0 {
		return "", false
	}
	if st.sizes[i] != 0 && pc >= st.addrs[i]+st.sizes[i] {
		return "", false
	}
	return st.names[i], true
}

// installSymbolizer wires fault.ExternalSymbolizer to a demangling ELF
// symbol lookup, resolving PCs from instrumented C/C++ frames that
// runtime.FuncForPC cannot place.
func installSymbolizer() {
	fault.ExternalSymbolizer = func(pc uintptr) (string, bool) {
		name, ok := loadSymtab().lookup(uint64(pc))
		if !ok {
			return "", false
		}
		return demangle.Filter(name), true
	}
}
