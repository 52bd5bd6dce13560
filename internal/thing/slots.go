package thing

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/oriys/labthings/internal/domain"
)

// slotTag is the struct tag a concrete Thing type uses to declare a
// dependency on another named Thing, resolved by the Server after every
// Thing has been constructed — mirroring the original's thing_slot, which
// likewise resolves connections only once the whole server is assembled so
// that two Things may depend on each other without a construction-order
// problem.
//
// The field's own Go type decides the slot's cardinality, the same way the
// original dispatches on a slot's Python type hint:
//
//   - a plain pointer/interface field (`Heater *HeaterThing`) must resolve to
//     exactly one Thing, unless tagged ",optional", in which case it may be
//     left nil.
//   - a slice field (`Heaters []*HeaterThing`) or a string-keyed map field
//     (`Heaters map[string]*HeaterThing`) collects every type-assignable
//     mounted Thing — the Go analogue of `Mapping[str, T]`.
//
// The tag's slot name is either an explicit Thing name, or the sentinel
// "auto" requesting a type search over every mounted Thing:
//
//	type Mixer struct {
//	    *thing.Thing
//	    Heater   *HeaterThing            `labthings:"slot:heater"`
//	    Display  *DisplayThing           `labthings:"slot:auto,optional"`
//	    Sensors  map[string]*SensorThing `labthings:"slot:auto"`
//	}
const slotTag = "labthings"

// autoSlotName is the sentinel tag value (and the matching SlotConnections
// override value) requesting Auto resolution: search every mounted Thing
// for one whose type is assignable to the slot field.
const autoSlotName = "auto"

// SlotConnections is the server-level override for slot resolution,
// analogous to the original's `server.thing_connections[thing][slot]`. The
// outer key is the host Thing's mount name, the inner key is the slot's Go
// field name, and the value is either a single Thing name (for a scalar
// slot), a comma-separated list of names (for a slice/map slot), or the
// empty string (forcing "no connection" for an optional scalar slot, or an
// empty collection for a slice/map slot).
//
// An override always wins over the slot's own tag default; a slot with no
// matching override falls back to its declared name, or to Auto type search
// if the slot's declared name is itself "auto".
type SlotConnections map[string]map[string]string

// slotSpec is a parsed `labthings:"slot:..."` tag.
type slotSpec struct {
	name     string // a Thing name, or autoSlotName
	optional bool
}

// resolveSlots walks v's fields (v must be a pointer to a struct) looking
// for `labthings:"slot:<name>[,optional]"` tags, and assigns the matching
// Thing(s) from impls into each tagged field. overrides is this Thing's
// entry from the server's SlotConnections, if any. A slot that cannot be
// resolved — unknown name, type mismatch, zero matches for a required
// scalar slot, or more than one match for an Auto scalar slot — is a
// configuration error returned from Server.Start, before any Setup runs,
// rather than at first use, the
// original's "fail fast before the server starts" behavior for thing_slot.
func resolveSlots(owner string, v any, impls map[string]any, overrides map[string]string) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return nil
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag, ok := field.Tag.Lookup(slotTag)
		if !ok {
			continue
		}
		spec, ok := parseSlotTag(tag)
		if !ok {
			continue
		}

		fv := rv.Field(i)
		if !fv.CanSet() {
			return fmt.Errorf("%w: thing %q slot field %q is unexported, cannot connect",
				domain.ErrConfiguration, owner, field.Name)
		}

		override, hasOverride := overrides[field.Name]

		switch fv.Kind() {
		case reflect.Slice:
			if err := resolveCollectionSlot(owner, field.Name, fv, fv.Type().Elem(), impls, override, hasOverride, false); err != nil {
				return err
			}
		case reflect.Map:
			if fv.Type().Key().Kind() != reflect.String {
				return fmt.Errorf("%w: thing %q slot field %q must be keyed by string",
					domain.ErrConfiguration, owner, field.Name)
			}
			if err := resolveCollectionSlot(owner, field.Name, fv, fv.Type().Elem(), impls, override, hasOverride, true); err != nil {
				return err
			}
		default:
			if err := resolveScalarSlot(owner, field.Name, fv, spec, impls, override, hasOverride); err != nil {
				return err
			}
		}
	}

	return nil
}

// resolveScalarSlot resolves a `T` or `T | None` slot: exactly one match
// required, unless spec.optional, in which case zero matches leaves fv
// untouched (nil).
func resolveScalarSlot(owner, fieldName string, fv reflect.Value, spec slotSpec, impls map[string]any, override string, hasOverride bool) error {
	name := spec.name
	optional := spec.optional

	if hasOverride {
		if override == "" {
			if !optional {
				return fmt.Errorf("%w: thing %q slot %q was overridden to no connection, but the slot is required",
					domain.ErrConfiguration, owner, fieldName)
			}
			return nil
		}
		name = override
	}

	if name == autoSlotName {
		matches := matchingByType(impls, fv.Type(), owner)
		switch len(matches) {
		case 0:
			if optional {
				return nil
			}
			return fmt.Errorf("%w: thing %q slot %q (auto) matched no thing of type %s",
				domain.ErrConfiguration, owner, fieldName, fv.Type())
		case 1:
			fv.Set(reflect.ValueOf(impls[matches[0]]))
			return nil
		default:
			return fmt.Errorf("%w: thing %q slot %q (auto) matched more than one thing of type %s: %s",
				domain.ErrConfiguration, owner, fieldName, fv.Type(), strings.Join(matches, ", "))
		}
	}

	target, ok := impls[name]
	if !ok {
		if optional {
			return nil
		}
		return fmt.Errorf("%w: thing %q has a slot for %q, but no such thing is registered",
			domain.ErrConfiguration, owner, name)
	}

	targetVal := reflect.ValueOf(target)
	if !targetVal.Type().AssignableTo(fv.Type()) {
		return fmt.Errorf("%w: thing %q slot field %q expects %s, but thing %q is %s",
			domain.ErrConfiguration, owner, fieldName, fv.Type(), name, targetVal.Type())
	}
	fv.Set(targetVal)
	return nil
}

// resolveCollectionSlot resolves a `Mapping[str, T]` slot (or its slice
// equivalent): every type-assignable mounted Thing is collected, unless an
// override names an explicit subset.
func resolveCollectionSlot(owner, fieldName string, fv reflect.Value, elemType reflect.Type, impls map[string]any, override string, hasOverride bool, isMap bool) error {
	var names []string
	if hasOverride {
		for _, n := range strings.Split(override, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	} else {
		names = matchingByType(impls, elemType, owner)
	}

	if isMap {
		out := reflect.MakeMapWithSize(fv.Type(), len(names))
		for _, n := range names {
			targetVal, err := assignableTarget(owner, fieldName, n, elemType, impls)
			if err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(n), targetVal)
		}
		fv.Set(out)
		return nil
	}

	sort.Strings(names)
	out := reflect.MakeSlice(fv.Type(), 0, len(names))
	for _, n := range names {
		targetVal, err := assignableTarget(owner, fieldName, n, elemType, impls)
		if err != nil {
			return err
		}
		out = reflect.Append(out, targetVal)
	}
	fv.Set(out)
	return nil
}

func assignableTarget(owner, fieldName, name string, elemType reflect.Type, impls map[string]any) (reflect.Value, error) {
	target, ok := impls[name]
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: thing %q slot %q names unknown thing %q",
			domain.ErrConfiguration, owner, fieldName, name)
	}
	targetVal := reflect.ValueOf(target)
	if !targetVal.Type().AssignableTo(elemType) {
		return reflect.Value{}, fmt.Errorf("%w: thing %q slot %q expects %s, but thing %q is %s",
			domain.ErrConfiguration, owner, fieldName, elemType, name, targetVal.Type())
	}
	return targetVal, nil
}

// matchingByType returns the sorted names of every impl (other than
// exclude, the slot's own host) whose concrete type is assignable to t.
func matchingByType(impls map[string]any, t reflect.Type, exclude string) []string {
	var names []string
	for name, impl := range impls {
		if name == exclude {
			continue
		}
		if reflect.ValueOf(impl).Type().AssignableTo(t) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// parseSlotTag parses a `slot:<name>[,optional]` tag value.
func parseSlotTag(tag string) (slotSpec, bool) {
	const prefix = "slot:"
	if !strings.HasPrefix(tag, prefix) {
		return slotSpec{}, false
	}
	parts := strings.Split(strings.TrimPrefix(tag, prefix), ",")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return slotSpec{}, false
	}
	spec := slotSpec{name: name}
	for _, opt := range parts[1:] {
		if strings.TrimSpace(opt) == "optional" {
			spec.optional = true
		}
	}
	return spec, true
}
