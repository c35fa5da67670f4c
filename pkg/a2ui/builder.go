// Package a2ui builds the UI-render messages streamed to the client
// alongside assistant text. The orchestration core treats these payloads
// as opaque; only the builders here know their shape.
package a2ui

import "fmt"

// Message is one renderable UI message. It is passed through the event
// stream and the result cache unmodified.
type Message map[string]any

// CardItem is one label/value row inside a card component.
type CardItem struct {
	Label     string `json:"label"`
	Value     string `json:"value"`
	Highlight bool   `json:"highlight,omitempty"`
}

// DataEntry is one key/value pair of a data-model update.
type DataEntry struct {
	Key         string   `json:"key"`
	ValueString string   `json:"valueString,omitempty"`
	ValueNumber *float64 `json:"valueNumber,omitempty"`
}

func literalString(value string) map[string]any {
	return map[string]any{"literalString": value}
}

func literalNumber(value float64) map[string]any {
	return map[string]any{"literalNumber": value}
}

// TextComponent builds a text component. usageHint is one of the
// renderer's text styles, e.g. "heading1" or "body".
func TextComponent(id, text, usageHint string) Message {
	return Message{
		"id": id,
		"component": map[string]any{
			"componentProperties": map[string]any{
				"text": map[string]any{
					"text":      literalString(text),
					"usageHint": literalString(usageHint),
				},
			},
		},
	}
}

// CardComponent builds a titled card of label/value rows. variant selects
// the renderer's card style ("default", "primary", "success", "destructive").
func CardComponent(id, title string, items []CardItem, variant string) Message {
	rows := make([]any, 0, len(items))
	for i, item := range items {
		row := map[string]any{
			"id":        fmt.Sprintf("%s_item_%d", id, i),
			"label":     literalString(item.Label),
			"value":     literalString(item.Value),
			"highlight": item.Highlight,
		}
		rows = append(rows, row)
	}
	return Message{
		"id": id,
		"component": map[string]any{
			"componentProperties": map[string]any{
				"card": map[string]any{
					"title":   literalString(title),
					"variant": literalString(variant),
					"items":   rows,
				},
			},
		},
	}
}

// ChartPoint is one point of the forecast chart.
type ChartPoint struct {
	Label string  `json:"label"`
	P10   float64 `json:"p10"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
}

// ForecastChart builds the quantile forecast chart component.
func ForecastChart(id string, points []ChartPoint, unit string) Message {
	series := make([]any, 0, len(points))
	for _, p := range points {
		series = append(series, map[string]any{
			"label": literalString(p.Label),
			"p10":   literalNumber(p.P10),
			"p50":   literalNumber(p.P50),
			"p90":   literalNumber(p.P90),
		})
	}
	return Message{
		"id": id,
		"component": map[string]any{
			"componentProperties": map[string]any{
				"forecastChart": map[string]any{
					"unit":   literalString(unit),
					"points": series,
				},
			},
		},
	}
}

// NeighborMapEntry is one neighboring area on the comparison map.
type NeighborMapEntry struct {
	AreaCode string  `json:"area_code"`
	Rent     float64 `json:"rent"`
	Distance float64 `json:"distance_km"`
}

// NeighborMap builds the spatial-neighbor component.
func NeighborMap(id, centerAreaCode string, neighbors []NeighborMapEntry) Message {
	entries := make([]any, 0, len(neighbors))
	for _, n := range neighbors {
		entries = append(entries, map[string]any{
			"areaCode": literalString(n.AreaCode),
			"rent":     literalNumber(n.Rent),
			"distance": literalNumber(n.Distance),
		})
	}
	return Message{
		"id": id,
		"component": map[string]any{
			"componentProperties": map[string]any{
				"neighborMap": map[string]any{
					"center":    literalString(centerAreaCode),
					"neighbors": entries,
				},
			},
		},
	}
}

// SurfaceUpdate wraps components into one surface update message.
func SurfaceUpdate(components []Message) Message {
	list := make([]any, 0, len(components))
	for _, c := range components {
		list = append(list, map[string]any(c))
	}
	return Message{
		"surfaceUpdate": map[string]any{
			"surfaceId":  "root",
			"components": list,
		},
	}
}

// DataModelUpdate publishes raw values under path for client-side
// recalculation (e.g. the what-if investment sliders).
func DataModelUpdate(entries []DataEntry, path string) Message {
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		entry := map[string]any{"key": e.Key}
		if e.ValueNumber != nil {
			entry["valueNumber"] = *e.ValueNumber
		} else {
			entry["valueString"] = e.ValueString
		}
		list = append(list, entry)
	}
	return Message{
		"dataModelUpdate": map[string]any{
			"path":     path,
			"contents": list,
		},
	}
}

// BeginRendering tells the client the surface is complete and may be drawn.
func BeginRendering(rootID string) Message {
	return Message{
		"beginRendering": map[string]any{
			"root": rootID,
		},
	}
}

// NumberEntry is a convenience constructor for numeric data-model entries.
func NumberEntry(key string, value float64) DataEntry {
	v := value
	return DataEntry{Key: key, ValueNumber: &v}
}
