package resolver

import (
	"encoding/json"

	"github.com/leozw/tenant-gateway/internal/core"
)

// entry is what both cache tiers store. A negative entry (Found == false) is
// an explicit "not found" marker, distinct from a cache miss.
type entry struct {
	Found  bool             `json:"found"`
	Tenant *core.TenantInfo `json:"tenant,omitempty"`
}

func positiveEntry(info core.TenantInfo) entry {
	return entry{Found: true, Tenant: &info}
}

func negativeEntry() entry {
	return entry{}
}

func (e entry) result() (*core.TenantInfo, error) {
	if !e.Found || e.Tenant == nil {
		return nil, core.ErrNotFound
	}
	info := *e.Tenant
	return &info, nil
}

func encodeEntry(e entry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(data []byte) (entry, error) {
	var e entry
	err := json.Unmarshal(data, &e)
	return e, err
}
