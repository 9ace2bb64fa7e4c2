// Package plcsim simulates a controller's tag API: an in-memory symbol table
// with annotations, a run-state switch and the JSON endpoints the bridge's
// HTTP gateway speaks.
package plcsim

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/plcsnmp/plcsnmp/internal/controller"
	"gopkg.in/yaml.v3"
)

var (
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrInvalidState   = errors.New("invalid run state")
)

// Device is the identity returned by the connect check
type Device struct {
	Name    string `yaml:"name"`
	Vendor  string `yaml:"vendor"`
	Version string `yaml:"version"`
}

// SymbolFile is the YAML layout of a simulator program
type SymbolFile struct {
	Device  Device        `yaml:"device"`
	State   string        `yaml:"state"`
	Symbols []SymbolEntry `yaml:"symbols"`
}

// SymbolEntry is one symbol in a SymbolFile
type SymbolEntry struct {
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	Value      string            `yaml:"value"`
	Attributes map[string]string `yaml:"attributes"`
}

// Store holds the simulated controller program in memory
type Store struct {
	mu      sync.RWMutex
	device  Device
	state   controller.RunState
	symbols map[string]*controller.Symbol
	writes  int
}

// NewStore creates a running, empty controller
func NewStore(device Device) *Store {
	if device.Name == "" {
		device.Name = "plcsim"
	}
	if device.Vendor == "" {
		device.Vendor = "plcsnmp"
	}
	if device.Version == "" {
		device.Version = "1.0"
	}
	return &Store{
		device:  device,
		state:   controller.RunStateRun,
		symbols: make(map[string]*controller.Symbol),
	}
}

// LoadFile reads a SymbolFile from path
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol file: %w", err)
	}

	var file SymbolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse symbol file: %w", err)
	}

	s := NewStore(file.Device)
	if file.State != "" {
		if err := s.SetState(file.State); err != nil {
			return nil, err
		}
	}
	for _, e := range file.Symbols {
		if e.Name == "" {
			return nil, fmt.Errorf("symbol without a name in %s", path)
		}
		s.Add(controller.Symbol{Name: e.Name, Type: e.Type, Value: e.Value, Attributes: e.Attributes})
	}
	return s, nil
}

// Add inserts or replaces a symbol
func (s *Store) Add(sym controller.Symbol) {
	attrs := make(map[string]string, len(sym.Attributes))
	for k, v := range sym.Attributes {
		attrs[k] = v
	}
	sym.Attributes = attrs

	s.mu.Lock()
	s.symbols[sym.Name] = &sym
	s.mu.Unlock()
}

// Device returns the controller identity
func (s *Store) Device() Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// State returns the current run state
func (s *Store) State() controller.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState switches the run state by wire name
func (s *Store) SetState(name string) error {
	state := controller.ParseRunState(name)
	if state == controller.RunStateUnknown {
		return fmt.Errorf("%w: %q", ErrInvalidState, name)
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

// Symbols returns copies of all symbols sorted by name. With annotatedOnly
// symbols without attributes are left out.
func (s *Store) Symbols(annotatedOnly bool) []controller.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]controller.Symbol, 0, len(s.symbols))
	for _, sym := range s.symbols {
		if annotatedOnly && len(sym.Attributes) == 0 {
			continue
		}
		out = append(out, copySymbol(sym))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Symbol returns a copy of the named symbol
func (s *Store) Symbol(name string) (controller.Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sym, ok := s.symbols[name]
	if !ok {
		return controller.Symbol{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	return copySymbol(sym), nil
}

// Write stores value into the named symbol
func (s *Store) Write(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sym, ok := s.symbols[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	sym.Value = value
	s.writes++
	return nil
}

// Writes returns how many writes the store accepted
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func copySymbol(sym *controller.Symbol) controller.Symbol {
	c := *sym
	if sym.Attributes != nil {
		c.Attributes = make(map[string]string, len(sym.Attributes))
		for k, v := range sym.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}
