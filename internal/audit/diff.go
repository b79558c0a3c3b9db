// Package audit computes field-level change-sets between two versions of a
// miniature record and persists the immutable history rows behind the
// per-miniature audit trail.
//
// The tracked-field list is a deliberate policy, not an accident: timestamps
// and denormalized relation payloads are excluded so incidental touches do
// not produce audit noise. Only the fields listed in DetectChanges are
// compared.
package audit

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/minivault/inventory-backend/internal/domain"
)

// Action values recorded on audit rows.
const (
	ActionMiniatureCreate = "MINIATURE_CREATE"
	ActionMiniatureUpdate = "MINIATURE_UPDATE"
	ActionMiniatureDelete = "MINIATURE_DELETE"
	ActionImageUpload     = "IMAGE_UPLOAD"
	ActionImageReplace    = "IMAGE_REPLACE"
	ActionImageDelete     = "IMAGE_DELETE"
	ActionTypeAssign      = "TYPE_ASSIGN"
	ActionTypeUnassign    = "TYPE_UNASSIGN"
)

// Change is one tracked field's before/after pair.
type Change struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// TypeRef is the audit-relevant projection of a type assignment.
type TypeRef struct {
	TypeID    int64 `json:"type_id"`
	ProxyType bool  `json:"proxy_type"`
}

// State is the snapshot of a miniature the diff engine operates on. Build it
// with StateOf from a loaded model, or literally in tests.
type State struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Location     string     `json:"location"`
	Quantity     int        `json:"quantity"`
	PaintedByID  int64      `json:"painted_by_id"`
	BaseSizeID   int64      `json:"base_size_id"`
	ProductSetID *int64     `json:"product_set_id"`
	InUse        *time.Time `json:"in_use"`
	Types        []TypeRef  `json:"types"`
	Tags         []int64    `json:"tags"`
}

// StateOf projects a loaded miniature (type links and tags populated) into
// the tracked-field snapshot.
func StateOf(m *domain.Miniature) State {
	s := State{
		Name:         m.Name,
		Description:  m.Description,
		Location:     m.Location,
		Quantity:     m.Quantity,
		PaintedByID:  m.PaintedByID,
		BaseSizeID:   m.BaseSizeID,
		ProductSetID: m.ProductSetID,
		InUse:        m.InUse,
	}
	for _, l := range m.Types {
		s.Types = append(s.Types, TypeRef{TypeID: l.TypeID, ProxyType: l.ProxyType})
	}
	for _, t := range m.Tags {
		s.Tags = append(s.Tags, t.ID)
	}
	return s
}

// DetectChanges compares two snapshots field by field and returns a map of
// only the differing fields, or nil when every tracked field is equal.
//
// Equality is type-aware: type assignments compare as an order-independent
// set of (type_id, proxy_type) pairs, tags as an order-independent set of
// ids, and scalars by identity (nil pointers equal only nil pointers).
func DetectChanges(prev, next State) map[string]Change {
	changes := make(map[string]Change)

	if prev.Name != next.Name {
		changes["name"] = Change{From: prev.Name, To: next.Name}
	}
	if prev.Description != next.Description {
		changes["description"] = Change{From: prev.Description, To: next.Description}
	}
	if prev.Location != next.Location {
		changes["location"] = Change{From: prev.Location, To: next.Location}
	}
	if prev.Quantity != next.Quantity {
		changes["quantity"] = Change{From: prev.Quantity, To: next.Quantity}
	}
	if prev.PaintedByID != next.PaintedByID {
		changes["painted_by_id"] = Change{From: prev.PaintedByID, To: next.PaintedByID}
	}
	if prev.BaseSizeID != next.BaseSizeID {
		changes["base_size_id"] = Change{From: prev.BaseSizeID, To: next.BaseSizeID}
	}
	if !int64PtrEqual(prev.ProductSetID, next.ProductSetID) {
		changes["product_set_id"] = Change{From: ptrValue(prev.ProductSetID), To: ptrValue(next.ProductSetID)}
	}
	if !timePtrEqual(prev.InUse, next.InUse) {
		changes["in_use"] = Change{From: timeValue(prev.InUse), To: timeValue(next.InUse)}
	}
	if !typeSetEqual(prev.Types, next.Types) {
		changes["types"] = Change{From: sortedTypes(prev.Types), To: sortedTypes(next.Types)}
	}
	if !idSetEqual(prev.Tags, next.Tags) {
		changes["tags"] = Change{From: sortedIDs(prev.Tags), To: sortedIDs(next.Tags)}
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ptrValue unwraps for JSON so absent values serialize as null, not a
// pointer address artifact.
func ptrValue(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func timeValue(p *time.Time) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func typeSetEqual(a, b []TypeRef) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[TypeRef]int, len(a))
	for _, r := range a {
		set[r]++
	}
	for _, r := range b {
		set[r]--
		if set[r] < 0 {
			return false
		}
	}
	return true
}

func idSetEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[int64]int, len(a))
	for _, id := range a {
		set[id]++
	}
	for _, id := range b {
		set[id]--
		if set[id] < 0 {
			return false
		}
	}
	return true
}

func sortedTypes(refs []TypeRef) []TypeRef {
	out := make([]TypeRef, len(refs))
	copy(out, refs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TypeID != out[j].TypeID {
			return out[i].TypeID < out[j].TypeID
		}
		return !out[i].ProxyType && out[j].ProxyType
	})
	return out
}

func sortedIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// marshalChanges renders a change map as the JSON stored on the audit row.
func marshalChanges(changes map[string]Change) (*string, error) {
	if changes == nil {
		return nil, nil
	}
	b, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// marshalSnapshot renders a full state snapshot for create/delete rows.
func marshalSnapshot(s State) (*string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	out := string(b)
	return &out, nil
}
