package idl

import (
	"encoding/binary"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/zeebo/blake3"
)

const InterfaceHashDomain = "GEAR-IDL/v1/interface-id"

// InterfaceDescriptor is the canonical form of a service hashed into its
// interface id. Fields are declared in key order so the JSON encoding is
// canonical.
type InterfaceDescriptor struct {
	Commands      []FunctionEntry     `json:"commands"`
	Events        []FunctionEntry     `json:"events"`
	Extends       []ExtendedInterface `json:"extends"`
	InterfacePath string              `json:"interface_path"`
	Queries       []FunctionEntry     `json:"queries"`
}

type FunctionEntry struct {
	EntryID uint16 `json:"entry_id"`
	Name    string `json:"name"`
}

type ExtendedInterface struct {
	InterfaceID uint64 `json:"interface_id"`
	Name        string `json:"name"`
}

// Descriptor builds the canonical descriptor of svc. doc must be validated.
func Descriptor(doc *Document, svc *Service) (*InterfaceDescriptor, error) {
	return descriptor(doc, svc, map[string]bool{})
}

func descriptor(doc *Document, svc *Service, visiting map[string]bool) (*InterfaceDescriptor, error) {
	if visiting[svc.Name] {
		return nil, fmt.Errorf("service extension cycle at '%s'", svc.Name)
	}
	visiting[svc.Name] = true
	defer delete(visiting, svc.Name)

	d := &InterfaceDescriptor{
		Commands:      []FunctionEntry{},
		Events:        []FunctionEntry{},
		Extends:       []ExtendedInterface{},
		InterfacePath: svc.Name,
		Queries:       []FunctionEntry{},
	}
	for _, name := range svc.Extends {
		base := doc.Service(name)
		if base == nil {
			return nil, fmt.Errorf("service '%s' extends unknown service '%s'", svc.Name, name)
		}
		bd, err := descriptor(doc, base, visiting)
		if err != nil {
			return nil, err
		}
		id, err := bd.ID()
		if err != nil {
			return nil, err
		}
		d.Extends = append(d.Extends, ExtendedInterface{InterfaceID: id, Name: name})
	}
	for _, f := range svc.Commands() {
		d.Commands = append(d.Commands, FunctionEntry{EntryID: f.EntryID, Name: f.Name})
	}
	for _, f := range svc.Queries() {
		d.Queries = append(d.Queries, FunctionEntry{EntryID: f.EntryID, Name: f.Name})
	}
	for _, e := range svc.Events {
		d.Events = append(d.Events, FunctionEntry{EntryID: e.EntryID, Name: e.Name})
	}
	return d, nil
}

// Canonical returns the canonical JSON bytes of d.
func (d *InterfaceDescriptor) Canonical() ([]byte, error) {
	return json.Marshal(d)
}

// ID hashes the canonical form with the interface domain and keeps the first
// eight bytes, little endian.
func (d *InterfaceDescriptor) ID() (uint64, error) {
	b, err := d.Canonical()
	if err != nil {
		return 0, err
	}
	return IDFromBytes(b), nil
}

func IDFromBytes(canonical []byte) uint64 {
	sum := hashWithDomain(InterfaceHashDomain, canonical)
	return binary.LittleEndian.Uint64(sum[:8])
}

// InterfaceID computes the interface id of svc.
func InterfaceID(doc *Document, svc *Service) (uint64, error) {
	d, err := Descriptor(doc, svc)
	if err != nil {
		return 0, err
	}
	return d.ID()
}

func hashWithDomain(domain string, payloads ...[]byte) []byte {
	h := blake3.New()
	_, _ = h.Write([]byte(domain))
	for _, p := range payloads {
		_, _ = h.Write(p)
	}
	return h.Sum(nil)
}
