// Package model implements the i3X data model as seen by a client.
//
// # Elements
//
// Everything addressable in an i3X server is an element identified by an
// elementId string. The model distinguishes:
//
//	Namespace        organizes types and instances (keyed by URI)
//	ObjectType       schema for object instances
//	RelationshipType named relation between instances
//	ObjectInstance   a concrete object, optionally a child of a composition
//
// # Values
//
// Values are reported as VQT records (value, quality, timestamp). A value
// read returns a LastKnownValue per element, which may carry child values
// for composite elements when read with a max depth greater than one.
//
// Subscription streams push ValueChange events. A single stream frame
// holds one object keyed by elementId, or an array of such objects;
// ParseValueChanges decodes either form and keeps the order in which the
// server wrote the elements.
//
// # Construction
//
// All model types are plain value structs. The FromMap constructors
// validate a decoded JSON object: required keys must be present and every
// known key must have the expected JSON type.
package model
