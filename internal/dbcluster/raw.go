package dbcluster

import (
	"encoding/json"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// plainCluster has DatabaseCluster's fields without its JSON methods.
type plainCluster DatabaseCluster

// UnmarshalJSON keeps the whole decoded object next to the typed fields, so
// a cluster read from the backend and written back does not lose fields the
// console does not model.
func (c *DatabaseCluster) UnmarshalJSON(b []byte) error {
	var p plainCluster
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = DatabaseCluster(p)
	c.raw = raw
	return nil
}

// MarshalJSON lays the typed fields over the object c was decoded from.
// spec.backup.schedules is owned by the typed list: an empty list removes
// it, and entries keep unknown keys from the stored schedule of the same
// name.
func (c DatabaseCluster) MarshalJSON() ([]byte, error) {
	p := plainCluster(c)
	p.raw = nil
	typed, err := json.Marshal(p)
	if err != nil || c.raw == nil {
		return typed, err
	}
	var overlay map[string]any
	if err := json.Unmarshal(typed, &overlay); err != nil {
		return nil, err
	}
	out := runtime.DeepCopyJSON(c.raw)
	mergeJSON(out, overlay)
	if err := setSchedules(out, c.raw, c.Spec.Backup.Schedules); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func mergeJSON(dst, src map[string]any) {
	for k, v := range src {
		sm, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		dm, ok := dst[k].(map[string]any)
		if !ok {
			dst[k] = sm
			continue
		}
		mergeJSON(dm, sm)
	}
}

func setSchedules(out, raw map[string]any, list []Schedule) error {
	if len(list) == 0 {
		unstructured.RemoveNestedField(out, "spec", "backup", "schedules")
		return nil
	}

	stored := map[string]map[string]any{}
	prev, _, _ := unstructured.NestedSlice(raw, "spec", "backup", "schedules")
	for _, item := range prev {
		if m, ok := item.(map[string]any); ok {
			if name, ok := m["name"].(string); ok {
				stored[name] = m
			}
		}
	}

	items := make([]any, 0, len(list))
	for _, s := range list {
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		var typed map[string]any
		if err := json.Unmarshal(b, &typed); err != nil {
			return err
		}
		m, ok := stored[s.Name]
		if !ok {
			items = append(items, typed)
			continue
		}
		if s.RetentionCopies == 0 {
			delete(m, "retentionCopies")
		}
		mergeJSON(m, typed)
		items = append(items, m)
	}
	return unstructured.SetNestedSlice(out, items, "spec", "backup", "schedules")
}
