// Package canon provides the canonical entity model for CRMSignal.
//
// Every CRM adapter normalizes vendor records into the types defined here,
// and every other internal package imports canon; canon imports nothing
// internal. Keeping the model in one leaf package means the engine never
// depends on a vendor-specific shape.
//
// Key design constraints:
//   - Field values are a closed union (Value): Null, String, Number, Bool,
//     Time, Array, Object. Nothing else can appear in an entity.
//   - Field paths are resolved with Resolve, which returns a typed
//     *PathError instead of an absent marker.
//   - Source provenance is held outside Entity.Fields and is never mutated.
//   - All JSON tags use camelCase, matching the canonical field names.
//   - Identity hashes are computed over canonical JSON only (MarshalCanonical).
package canon
