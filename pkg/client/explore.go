package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i3x-protocol/i3x-go/pkg/model"
	"github.com/i3x-protocol/i3x-go/pkg/transport"
)

// DefaultValueDepth is the maxDepth used by the CLI for value reads.
const DefaultValueDepth = 1

// idsRequest is the body of the element query endpoints.
type idsRequest struct {
	ElementIDs       []string `json:"elementIds"`
	MaxDepth         *int     `json:"maxDepth,omitempty"`
	RelationshipType string   `json:"relationshipType,omitempty"`
	StartTime        string   `json:"startTime,omitempty"`
	EndTime          string   `json:"endTime,omitempty"`
}

func depth(d int) *int {
	return &d
}

// Namespaces lists all namespaces.
func (c *Client) Namespaces(ctx context.Context) ([]model.Namespace, error) {
	var items []map[string]any
	if err := c.transport.Get(ctx, "/namespaces", nil, &items); err != nil {
		return nil, err
	}
	return mapAll(items, model.NamespaceFromMap)
}

// ObjectTypes lists object types, optionally limited to one namespace.
func (c *Client) ObjectTypes(ctx context.Context, namespaceURI string) ([]model.ObjectType, error) {
	var items []map[string]any
	if err := c.transport.Get(ctx, "/objecttypes", namespaceQuery(namespaceURI), &items); err != nil {
		return nil, err
	}
	return mapAll(items, model.ObjectTypeFromMap)
}

// QueryObjectTypes returns the object types with the given ids.
func (c *Client) QueryObjectTypes(ctx context.Context, elementIDs []string) ([]model.ObjectType, error) {
	var items []map[string]any
	if err := c.transport.Post(ctx, "/objecttypes/query", idsRequest{ElementIDs: elementIDs}, &items); err != nil {
		return nil, err
	}
	return mapAll(items, model.ObjectTypeFromMap)
}

// RelationshipTypes lists relationship types, optionally limited to one
// namespace.
func (c *Client) RelationshipTypes(ctx context.Context, namespaceURI string) ([]model.RelationshipType, error) {
	var items []map[string]any
	if err := c.transport.Get(ctx, "/relationshiptypes", namespaceQuery(namespaceURI), &items); err != nil {
		return nil, err
	}
	return mapAll(items, model.RelationshipTypeFromMap)
}

// QueryRelationshipTypes returns the relationship types with the given ids.
func (c *Client) QueryRelationshipTypes(ctx context.Context, elementIDs []string) ([]model.RelationshipType, error) {
	var items []map[string]any
	if err := c.transport.Post(ctx, "/relationshiptypes/query", idsRequest{ElementIDs: elementIDs}, &items); err != nil {
		return nil, err
	}
	return mapAll(items, model.RelationshipTypeFromMap)
}

// Objects lists object instances, optionally limited to one type.
func (c *Client) Objects(ctx context.Context, typeID string, includeMetadata bool) ([]model.ObjectInstance, error) {
	q := url.Values{}
	if typeID != "" {
		q.Set("typeId", typeID)
	}
	if includeMetadata {
		q.Set("includeMetadata", "true")
	}
	var items []map[string]any
	if err := c.transport.Get(ctx, "/objects", q, &items); err != nil {
		return nil, err
	}
	return mapAll(items, model.ObjectInstanceFromMap)
}

// Object returns one object instance. An unknown id is a NotFound error.
func (c *Client) Object(ctx context.Context, elementID string) (model.ObjectInstance, error) {
	objs, err := c.ListObjects(ctx, []string{elementID})
	if err != nil {
		return model.ObjectInstance{}, err
	}
	if len(objs) == 0 {
		return model.ObjectInstance{}, notFound("object not found: " + elementID)
	}
	return objs[0], nil
}

// ListObjects returns the object instances with the given ids.
func (c *Client) ListObjects(ctx context.Context, elementIDs []string) ([]model.ObjectInstance, error) {
	var items []map[string]any
	if err := c.transport.Post(ctx, "/objects/list", idsRequest{ElementIDs: elementIDs}, &items); err != nil {
		return nil, err
	}
	return mapAll(items, model.ObjectInstanceFromMap)
}

// RelatedObjects returns the objects related to elementIDs by
// relationshipType.
func (c *Client) RelatedObjects(ctx context.Context, elementIDs []string, relationshipType string) ([]model.ObjectInstance, error) {
	req := idsRequest{ElementIDs: elementIDs, RelationshipType: relationshipType}
	var items []map[string]any
	if err := c.transport.Post(ctx, "/objects/related", req, &items); err != nil {
		return nil, err
	}
	return mapAll(items, model.ObjectInstanceFromMap)
}

// Value returns the last known value of one element. An element the
// server omits from the response is a NotFound error.
func (c *Client) Value(ctx context.Context, elementID string, maxDepth int) (model.LastKnownValue, error) {
	values, err := c.values(ctx, "/objects/value", idsRequest{ElementIDs: []string{elementID}, MaxDepth: depth(maxDepth)})
	if err != nil {
		return model.LastKnownValue{}, err
	}
	v, ok := values[elementID]
	if !ok {
		return model.LastKnownValue{}, notFound("no value for: " + elementID)
	}
	return v, nil
}

// Values returns the last known values of several elements, keyed by id.
// Elements without a value are absent from the map.
func (c *Client) Values(ctx context.Context, elementIDs []string, maxDepth int) (map[string]model.LastKnownValue, error) {
	return c.values(ctx, "/objects/value", idsRequest{ElementIDs: elementIDs, MaxDepth: depth(maxDepth)})
}

// History returns the recorded values of one element. Zero start or end
// leaves that bound open.
func (c *Client) History(ctx context.Context, elementID string, start, end time.Time, maxDepth int) (model.LastKnownValue, error) {
	req := idsRequest{ElementIDs: []string{elementID}, MaxDepth: depth(maxDepth)}
	if !start.IsZero() {
		req.StartTime = start.UTC().Format(time.RFC3339Nano)
	}
	if !end.IsZero() {
		req.EndTime = end.UTC().Format(time.RFC3339Nano)
	}
	values, err := c.values(ctx, "/objects/history", req)
	if err != nil {
		return model.LastKnownValue{}, err
	}
	v, ok := values[elementID]
	if !ok {
		return model.LastKnownValue{}, notFound("no history for: " + elementID)
	}
	return v, nil
}

func (c *Client) values(ctx context.Context, path string, req idsRequest) (map[string]model.LastKnownValue, error) {
	var raw map[string]any
	if err := c.transport.Post(ctx, path, req, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]model.LastKnownValue, len(raw))
	for id, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: value entry for %s is %T", model.ErrInvalidPayload, id, entry)
		}
		v, err := model.LastKnownValueFromMap(id, m)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

// UpdateValue writes the current value of an element.
func (c *Client) UpdateValue(ctx context.Context, elementID string, value any) (model.UpdateResult, error) {
	return c.update(ctx, "/objects/"+transport.EscapeID(elementID)+"/value", elementID, value)
}

// UpdateHistory writes historical values of an element.
func (c *Client) UpdateHistory(ctx context.Context, elementID string, values any) (model.UpdateResult, error) {
	return c.update(ctx, "/objects/"+transport.EscapeID(elementID)+"/history", elementID, values)
}

func (c *Client) update(ctx context.Context, path, elementID string, body any) (model.UpdateResult, error) {
	var raw map[string]any
	if err := c.transport.Put(ctx, path, body, &raw); err != nil {
		return model.UpdateResult{}, err
	}
	return model.UpdateResultFromMap(elementID, raw)
}

func namespaceQuery(uri string) url.Values {
	if uri == "" {
		return nil
	}
	return url.Values{"namespaceUri": {uri}}
}

func mapAll[T any](items []map[string]any, from func(map[string]any) (T, error)) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, m := range items {
		v, err := from(m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func notFound(msg string) error {
	err := transport.NewError(transport.KindNotFound, msg, nil)
	err.StatusCode = http.StatusNotFound
	return err
}
