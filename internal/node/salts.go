package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"hitchload/internal/catalog"
)

// globalConfig is the subset of the GlobalConfig payload this tool consumes.
// Salts live under two sections with slightly different name keys; both are
// scanned for catalog field names.
type globalConfig struct {
	Fields          map[string]globalField     `json:"Fields"`
	FieldQualifiers map[string]globalQualifier `json:"FieldQualifiers"`
}

type globalField struct {
	FieldName string `json:"FieldName"`
	HashSalt  string `json:"HashSalt"`
}

type globalQualifier struct {
	Name     string `json:"Name"`
	HashSalt string `json:"HashSalt"`
}

// FetchSalts retrieves GlobalConfig from the node and injects the per-field
// hash salts into the catalog. It fails when the payload leaves any hashed
// catalog field without a salt, since streaming must not start in that state.
func FetchSalts(ctx context.Context, c *Client, cat *catalog.Catalog) error {
	resp, err := c.do(ctx, http.MethodGet, "GlobalConfig", nil, nil, nil)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload globalConfig
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("node: decode GlobalConfig: %w", err)
	}

	for _, f := range payload.Fields {
		if cat.Field(f.FieldName) != nil {
			if err := cat.SetSalt(f.FieldName, f.HashSalt); err != nil {
				return err
			}
		}
	}
	for _, q := range payload.FieldQualifiers {
		if cat.Field(q.Name) != nil {
			if err := cat.SetSalt(q.Name, q.HashSalt); err != nil {
				return err
			}
		}
	}

	if missing := cat.MissingSalts(); len(missing) > 0 {
		return fmt.Errorf("node: GlobalConfig supplied no salt for: %v", missing)
	}
	return nil
}
