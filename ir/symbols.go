package ir

import "strconv"

// SymbolTable hands out module-unique names for generated functions and
// values.
type SymbolTable struct {
	used map[string]struct{}
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{used: make(map[string]struct{})}
}

// Register marks name as taken.
func (s *SymbolTable) Register(name string) {
	s.used[name] = struct{}{}
}

// IsUsed reports whether name has been taken.
func (s *SymbolTable) IsUsed(name string) bool {
	_, ok := s.used[name]
	return ok
}

// New returns base if it is free, otherwise the first free name of the form
// base_1, base_2, ... The returned name is registered.
func (s *SymbolTable) New(base string) string {
	if base == "" {
		base = "tint_symbol"
	}
	if !s.IsUsed(base) {
		s.Register(base)
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if !s.IsUsed(candidate) {
			s.Register(candidate)
			return candidate
		}
	}
}

// Count returns the number of registered names.
func (s *SymbolTable) Count() int {
	return len(s.used)
}
