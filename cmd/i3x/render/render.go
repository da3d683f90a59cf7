// Package render formats i3X model values for terminal output.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/i3x-protocol/i3x-go/pkg/client"
	"github.com/i3x-protocol/i3x-go/pkg/model"
)

// Namespaces writes one line per namespace.
func Namespaces(w io.Writer, namespaces []model.Namespace) {
	if len(namespaces) == 0 {
		fmt.Fprintln(w, "No namespaces")
		return
	}
	for _, ns := range namespaces {
		if ns.DisplayName != "" {
			fmt.Fprintf(w, "  %s  (%s)\n", ns.URI, ns.DisplayName)
		} else {
			fmt.Fprintf(w, "  %s\n", ns.URI)
		}
	}
}

// ObjectTypes writes one line per object type.
func ObjectTypes(w io.Writer, types []model.ObjectType) {
	if len(types) == 0 {
		fmt.Fprintln(w, "No object types")
		return
	}
	for _, t := range types {
		fmt.Fprintf(w, "  %-32s %s", t.ElementID, t.DisplayName)
		if t.NamespaceURI != "" {
			fmt.Fprintf(w, " [%s]", t.NamespaceURI)
		}
		fmt.Fprintln(w)
	}
}

// RelationshipTypes writes one line per relationship type.
func RelationshipTypes(w io.Writer, types []model.RelationshipType) {
	for _, t := range types {
		fmt.Fprintf(w, "  %-32s %s", t.ElementID, t.DisplayName)
		if t.ReverseOf != "" {
			fmt.Fprintf(w, " (reverse of %s)", t.ReverseOf)
		}
		fmt.Fprintln(w)
	}
}

// Objects writes one line per object instance.
func Objects(w io.Writer, objects []model.ObjectInstance) {
	if len(objects) == 0 {
		fmt.Fprintln(w, "No objects")
		return
	}
	for _, o := range objects {
		fmt.Fprintf(w, "  %-32s %s", o.ElementID, o.DisplayName)
		if o.TypeID != "" {
			fmt.Fprintf(w, " type=%s", o.TypeID)
		}
		if o.ParentID != nil {
			fmt.Fprintf(w, " parent=%s", *o.ParentID)
		}
		if o.IsComposition {
			fmt.Fprint(w, " composition")
		}
		fmt.Fprintln(w)
	}
}

// Value writes a value read, children indented below their parent in
// element id order.
func Value(w io.Writer, v model.LastKnownValue) {
	writeValue(w, v, "")
}

func writeValue(w io.Writer, v model.LastKnownValue, indent string) {
	fmt.Fprintf(w, "%s%s\n", indent, v.ElementID)
	for _, vqt := range v.Data {
		fmt.Fprintf(w, "%s  %s\n", indent, VQT(vqt))
	}

	ids := make([]string, 0, len(v.Children))
	for id := range v.Children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		writeValue(w, v.Children[id], indent+"  ")
	}
}

// Change writes a streamed value change on behalf of a subscription.
func Change(w io.Writer, subscriptionID string, c model.ValueChange) {
	writeChange(w, "["+subscriptionID+"] ", c, "")
}

func writeChange(w io.Writer, prefix string, c model.ValueChange, indent string) {
	if latest, ok := c.Latest(); ok && len(c.Data) == 1 {
		fmt.Fprintf(w, "%s%s%s = %s\n", prefix, indent, c.ElementID, VQT(latest))
	} else {
		fmt.Fprintf(w, "%s%s%s\n", prefix, indent, c.ElementID)
		for _, vqt := range c.Data {
			fmt.Fprintf(w, "%s%s  %s\n", prefix, indent, VQT(vqt))
		}
	}
	for _, child := range c.Children {
		writeChange(w, prefix, child, indent+"  ")
	}
}

// VQT formats one value/quality/timestamp triple.
func VQT(v model.VQT) string {
	var b strings.Builder
	b.WriteString(formatAny(v.Value))
	if v.Quality != "" {
		b.WriteString(" (")
		b.WriteString(v.Quality)
		b.WriteString(")")
	}
	if v.Timestamp != "" {
		b.WriteString(" @ ")
		b.WriteString(v.Timestamp)
	}
	return b.String()
}

func formatAny(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// Subscription writes the local view of one subscription.
func Subscription(w io.Writer, sub *client.Subscription) {
	fmt.Fprintf(w, "  %s  state=%s delivery=%s streaming=%t queued=%d dropped=%d\n",
		sub.ID(), sub.State(), sub.Delivery(), sub.IsStreaming(), sub.QueuedUpdates(), sub.Dropped())
	for _, obj := range sub.Objects() {
		fmt.Fprintf(w, "      %s (depth %d)\n", obj.ElementID, obj.MaxDepth)
	}
}

// SubscriptionInfo writes the server view of one subscription.
func SubscriptionInfo(w io.Writer, info model.SubscriptionInfo) {
	fmt.Fprintf(w, "  %s  streaming=%t queued=%d", info.SubscriptionID, info.IsStreaming, info.QueuedUpdates)
	if info.Created != "" {
		fmt.Fprintf(w, " created=%s", info.Created)
	}
	fmt.Fprintln(w)
	for _, id := range info.Objects {
		fmt.Fprintf(w, "      %s\n", id)
	}
}
