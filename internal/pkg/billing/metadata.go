package billing

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pmuprofit/coursegate/internal/pkg/products"
)

// Checkout metadata keys written by the storefront when a checkout starts.
const (
	MetadataUserID   = "userId"
	MetadataProduct  = "productId"
	MetadataProducts = "products"
	MetadataEmail    = "email"
	MetadataFullName = "fullName"
)

// principalFromMetadata returns the user id carried by the payment, or "".
func principalFromMetadata(meta map[string]string) string {
	for _, key := range []string{MetadataUserID, "user_id"} {
		if v := strings.TrimSpace(meta[key]); v != "" {
			return v
		}
	}
	return ""
}

func validPrincipal(id string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// declaredProducts returns the raw product references a purchase is for:
// the explicit product, else the metadata product field(s), else the base product.
func declaredProducts(specific string, meta map[string]string) []string {
	if s := strings.TrimSpace(specific); s != "" {
		return []string{s}
	}
	if s := strings.TrimSpace(meta[MetadataProduct]); s != "" {
		return []string{s}
	}
	if list := splitList(meta[MetadataProducts]); len(list) > 0 {
		return list
	}
	return []string{products.BaseProductID.String()}
}

// flaggedAddons returns the add-on products switched on by boolean metadata flags.
func flaggedAddons(meta map[string]string) []string {
	out := []string{}
	for _, p := range products.Addons() {
		if isTrueFlag(meta[p.AddonFlag]) {
			out = append(out, p.ID.String())
		}
	}
	return out
}

func isTrueFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeAll normalizes refs in order, dropping duplicates. Unknown refs are
// returned separately and never replaced by a default.
func normalizeAll(refs []string) (ids []products.ID, unknown []string) {
	seen := make(map[products.ID]struct{}, len(refs))
	for _, ref := range refs {
		id, err := products.Normalize(ref)
		if err != nil {
			unknown = append(unknown, ref)
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, unknown
}
