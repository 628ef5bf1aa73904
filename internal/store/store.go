package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/orrn/labelflow/internal/faults"
)

// ProfileStore holds the configured profiles in file order. Reads are
// concurrent; ReplaceAll is the single-writer swap used by config reload,
// which the caller serializes against in-flight requests.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles []*Profile
}

func NewProfileStore(profiles []*Profile) (*ProfileStore, error) {
	s := &ProfileStore{}
	if err := s.ReplaceAll(profiles); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadProfiles reads a flat JSON array of profiles.
func LoadProfiles(path string) (*ProfileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	var profiles []*Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("%w: profiles file is not valid JSON: %v", faults.ErrConfiguration, err)
	}
	return NewProfileStore(profiles)
}

func (s *ProfileStore) ReplaceAll(profiles []*Profile) error {
	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate profile name %q", faults.ErrConfiguration, p.Name)
		}
		seen[p.Name] = true
	}

	s.mu.Lock()
	s.profiles = profiles
	s.mu.Unlock()
	return nil
}

// List returns the profiles in configuration order.
func (s *ProfileStore) List() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

func (s *ProfileStore) Get(name string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// PrinterStore holds the configured printers in file order. Order matters
// for printer selection: the first configured printer found among a
// request's candidates wins.
type PrinterStore struct {
	mu       sync.RWMutex
	printers []*Printer
}

func NewPrinterStore(printers []*Printer) (*PrinterStore, error) {
	s := &PrinterStore{}
	if err := s.ReplaceAll(printers); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadPrinters reads a flat JSON array of printers.
func LoadPrinters(path string) (*PrinterStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read printers file: %w", err)
	}
	var printers []*Printer
	if err := json.Unmarshal(data, &printers); err != nil {
		return nil, fmt.Errorf("%w: printers file is not valid JSON: %v", faults.ErrConfiguration, err)
	}
	return NewPrinterStore(printers)
}

func (s *PrinterStore) ReplaceAll(printers []*Printer) error {
	seen := make(map[string]bool, len(printers))
	for _, p := range printers {
		if p.Name == "" || p.Host == "" {
			return fmt.Errorf("%w: printer entries require name and host", faults.ErrConfiguration)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate printer name %q", faults.ErrConfiguration, p.Name)
		}
		seen[p.Name] = true
	}

	s.mu.Lock()
	s.printers = printers
	s.mu.Unlock()
	return nil
}

func (s *PrinterStore) List() []*Printer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Printer, len(s.printers))
	copy(out, s.printers)
	return out
}

func (s *PrinterStore) Get(name string) (*Printer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.printers {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}
