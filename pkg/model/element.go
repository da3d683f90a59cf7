package model

// Namespace organizes types and elements.
type Namespace struct {
	URI         string `json:"uri"`
	DisplayName string `json:"displayName,omitempty"`
}

// NamespaceFromMap builds a Namespace from a decoded JSON object.
func NamespaceFromMap(m map[string]any) (Namespace, error) {
	uri, err := requireString(m, "uri")
	if err != nil {
		return Namespace{}, err
	}
	name, err := optionalString(m, "displayName")
	if err != nil {
		return Namespace{}, err
	}
	return Namespace{URI: uri, DisplayName: name}, nil
}

// ObjectType defines the schema for object instances.
type ObjectType struct {
	ElementID    string         `json:"elementId"`
	DisplayName  string         `json:"displayName,omitempty"`
	NamespaceURI string         `json:"namespaceUri,omitempty"`
	Schema       map[string]any `json:"schema,omitempty"`
}

// ObjectTypeFromMap builds an ObjectType from a decoded JSON object.
func ObjectTypeFromMap(m map[string]any) (ObjectType, error) {
	var t ObjectType
	var err error
	if t.ElementID, err = requireString(m, "elementId"); err != nil {
		return ObjectType{}, err
	}
	if t.DisplayName, err = optionalString(m, "displayName"); err != nil {
		return ObjectType{}, err
	}
	if t.NamespaceURI, err = optionalString(m, "namespaceUri"); err != nil {
		return ObjectType{}, err
	}
	if t.Schema, err = optionalObject(m, "schema"); err != nil {
		return ObjectType{}, err
	}
	return t, nil
}

// RelationshipType defines a type of relationship between object instances.
type RelationshipType struct {
	ElementID    string `json:"elementId"`
	DisplayName  string `json:"displayName,omitempty"`
	NamespaceURI string `json:"namespaceUri,omitempty"`
	ReverseOf    string `json:"reverseOf,omitempty"`
}

// RelationshipTypeFromMap builds a RelationshipType from a decoded JSON object.
func RelationshipTypeFromMap(m map[string]any) (RelationshipType, error) {
	var t RelationshipType
	var err error
	if t.ElementID, err = requireString(m, "elementId"); err != nil {
		return RelationshipType{}, err
	}
	if t.DisplayName, err = optionalString(m, "displayName"); err != nil {
		return RelationshipType{}, err
	}
	if t.NamespaceURI, err = optionalString(m, "namespaceUri"); err != nil {
		return RelationshipType{}, err
	}
	if t.ReverseOf, err = optionalString(m, "reverseOf"); err != nil {
		return RelationshipType{}, err
	}
	return t, nil
}

// ObjectInstance is a concrete object in the server's model.
type ObjectInstance struct {
	ElementID    string `json:"elementId"`
	DisplayName  string `json:"displayName,omitempty"`
	TypeID       string `json:"typeId,omitempty"`
	NamespaceURI string `json:"namespaceUri,omitempty"`

	// ParentID is nil for root objects.
	ParentID      *string `json:"parentId,omitempty"`
	IsComposition bool    `json:"isComposition,omitempty"`
}

// ObjectInstanceFromMap builds an ObjectInstance from a decoded JSON object.
func ObjectInstanceFromMap(m map[string]any) (ObjectInstance, error) {
	var o ObjectInstance
	var err error
	if o.ElementID, err = requireString(m, "elementId"); err != nil {
		return ObjectInstance{}, err
	}
	if o.DisplayName, err = optionalString(m, "displayName"); err != nil {
		return ObjectInstance{}, err
	}
	if o.TypeID, err = optionalString(m, "typeId"); err != nil {
		return ObjectInstance{}, err
	}
	if o.NamespaceURI, err = optionalString(m, "namespaceUri"); err != nil {
		return ObjectInstance{}, err
	}
	if o.ParentID, err = optionalStringPtr(m, "parentId"); err != nil {
		return ObjectInstance{}, err
	}
	if o.IsComposition, err = optionalBool(m, "isComposition"); err != nil {
		return ObjectInstance{}, err
	}
	return o, nil
}

// Parent returns the parent element ID and whether one is set.
func (o ObjectInstance) Parent() (string, bool) {
	if o.ParentID == nil {
		return "", false
	}
	return *o.ParentID, true
}
