package orion

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// AttributeValue is an attribute as returned by the broker.
type AttributeValue struct {
	Type     string         `mapstructure:"type"`
	Value    any            `mapstructure:"value"`
	Metadata map[string]any `mapstructure:"metadata"`
}

// Entity as listed by GET /v2/entities.
type Entity struct {
	ID         string
	Type       string
	Attributes map[string]AttributeValue
}

// decodeEntity splits the flat broker object into id, type and attributes.
func decodeEntity(raw map[string]any) (Entity, error) {
	e := Entity{Attributes: make(map[string]AttributeValue, len(raw))}
	for key, v := range raw {
		switch key {
		case "id":
			id, ok := v.(string)
			if !ok {
				return Entity{}, fmt.Errorf("entity id is %T, not a string", v)
			}
			e.ID = id
		case "type":
			typ, ok := v.(string)
			if !ok {
				return Entity{}, fmt.Errorf("entity type is %T, not a string", v)
			}
			e.Type = typ
		default:
			var attr AttributeValue
			if err := mapstructure.Decode(v, &attr); err != nil {
				return Entity{}, fmt.Errorf("decode attribute %q: %w", key, err)
			}
			e.Attributes[key] = attr
		}
	}
	if e.ID == "" {
		return Entity{}, fmt.Errorf("entity without id")
	}
	return e, nil
}
