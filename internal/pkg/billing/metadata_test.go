package billing

import (
	"testing"

	"github.com/pmuprofit/coursegate/internal/pkg/products"
	"github.com/stretchr/testify/assert"
)

func TestDeclaredProducts(t *testing.T) {
	tests := []struct {
		name     string
		specific string
		meta     map[string]string
		want     []string
	}{
		{name: "specific wins", specific: "pricing-template", meta: map[string]string{"productId": "pmu-ad-generator"}, want: []string{"pricing-template"}},
		{name: "metadata product", meta: map[string]string{"productId": "pmu-ad-generator"}, want: []string{"pmu-ad-generator"}},
		{name: "metadata list", meta: map[string]string{"products": "pmu-profit-system, pricing-template,"}, want: []string{"pmu-profit-system", "pricing-template"}},
		{name: "default base", meta: map[string]string{}, want: []string{products.BaseProductID.String()}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, declaredProducts(tt.specific, tt.meta), tt.name)
	}
}

func TestFlaggedAddons(t *testing.T) {
	got := flaggedAddons(map[string]string{
		"includeAdGenerator":     "true",
		"includeBlueprint":       "false",
		"includePricingTemplate": "1",
	})
	assert.Equal(t, []string{products.AdGeneratorProductID.String(), products.PricingTemplateProduct.String()}, got)
	assert.Empty(t, flaggedAddons(nil))
}

func TestNormalizeAllKeepsUnknownSeparate(t *testing.T) {
	ids, unknown := normalizeAll([]string{"pmu-profit-system", products.BaseProductID.String(), "bogus"})
	assert.Equal(t, []products.ID{products.BaseProductID}, ids)
	assert.Equal(t, []string{"bogus"}, unknown)
}

func TestPrincipalFromMetadata(t *testing.T) {
	assert.Equal(t, "a", principalFromMetadata(map[string]string{"userId": " a "}))
	assert.Equal(t, "b", principalFromMetadata(map[string]string{"user_id": "b"}))
	assert.Equal(t, "", principalFromMetadata(map[string]string{}))
}
