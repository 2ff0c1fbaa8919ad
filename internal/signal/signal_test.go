package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/sightline/internal/errors"
)

func TestType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"contentCoverage", "contentCoverage"},
		{"localPresence:store-1", "localPresence"},
		{"localPresence:store:2", "localPresence"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Type(tt.key), "Type(%q)", tt.key)
	}
}

func TestValidateValue(t *testing.T) {
	require.NoError(t, ValidateValue("contentCoverage", 0.4))
	require.NoError(t, ValidateValue("contentCoverage", 1.7), "out-of-range values are clamped, not rejected")

	for _, tc := range []struct {
		key   string
		value float64
	}{
		{"", 0.5},
		{"  ", 0.5},
		{":orphan", 0.5},
		{"contentCoverage", math.NaN()},
		{"contentCoverage", math.Inf(1)},
	} {
		err := ValidateValue(tc.key, tc.value)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "key=%q value=%v", tc.key, tc.value)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.3))
	assert.Equal(t, 1.0, Clamp(1.3))
	assert.Equal(t, 0.25, Clamp(0.25))
}

func TestParseEntityRef(t *testing.T) {
	ref, err := ParseEntityRef("shop-1", "product:42")
	require.NoError(t, err)
	assert.Equal(t, EntityRef{ProjectID: "shop-1", Kind: "product", ID: "42"}, ref)
	assert.Equal(t, "product:42", ref.String())

	// IDs may contain colons; only the first separates kind.
	ref, err = ParseEntityRef("shop-1", "page:/a:b")
	require.NoError(t, err)
	assert.Equal(t, "/a:b", ref.ID)

	for _, bad := range []string{"product", ":42", "product:", ""} {
		_, err := ParseEntityRef("shop-1", bad)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "input %q", bad)
	}

	_, err = ParseEntityRef("", "product:42")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestSnapshot_Instances(t *testing.T) {
	snap := Snapshot{
		"localPresence:b": 0.2,
		"localPresence:a": 1.4,
		"localPresence":   0.5,
		"crawlHealth":     0.9,
	}

	keys, values := snap.Instances("localPresence")
	assert.Equal(t, []string{"localPresence", "localPresence:a", "localPresence:b"}, keys)
	assert.Equal(t, []float64{0.5, 1.0, 0.2}, values)

	keys, values = snap.Instances("missing")
	assert.Empty(t, keys)
	assert.Empty(t, values)
}

func TestNewSnapshot_RejectsInvalid(t *testing.T) {
	_, err := NewSnapshot(map[string]float64{"ok": 0.3, "bad": math.NaN()})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	snap, err := NewSnapshot(map[string]float64{"ok": 0.3})
	require.NoError(t, err)
	clone := snap.Clone()
	clone["ok"] = 0.9
	assert.Equal(t, 0.3, snap["ok"])
}

func TestBatch_ValidateAndGroup(t *testing.T) {
	p1 := EntityRef{ProjectID: "shop", Kind: "product", ID: "1"}
	p2 := EntityRef{ProjectID: "shop", Kind: "product", ID: "2"}
	batch := Batch{
		{Key: "metadataCompleteness", Value: 0.2, Scope: p1},
		{Key: "schemaMarkup", Value: 0.1, Scope: p1},
		{Key: "metadataCompleteness", Value: 0.8, Scope: p2},
		{Key: "metadataCompleteness", Value: 0.9, Scope: p2},
	}
	require.NoError(t, batch.Validate())

	grouped := batch.ByEntity()
	require.Len(t, grouped, 2)
	assert.Len(t, grouped[p1], 2)
	assert.Equal(t, 0.9, grouped[p2]["metadataCompleteness"])

	bad := append(Batch{}, batch...)
	bad = append(bad, Signal{Key: "x", Value: 0.1, Scope: EntityRef{ProjectID: "shop"}})
	assert.True(t, errors.Is(bad.Validate(), errors.ErrInvalidRequest))
}

func TestApplicability(t *testing.T) {
	a := Applicability{
		PillarLocalDiscovery: {Status: NotApplicable, Reasons: []ReasonCode{"online_only"}},
		PillarContent:        {Status: Applicable},
	}
	assert.True(t, a.Excludes(PillarLocalDiscovery))
	assert.False(t, a.Excludes(PillarContent))
	assert.False(t, a.Excludes(PillarTechnical))
	assert.Equal(t, Unknown, a.Decision(PillarTechnical).Status)

	var none Applicability
	assert.False(t, none.Excludes(PillarLocalDiscovery))

	_, err := ParseApplicabilityStatus("maybe")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	s, err := ParseApplicabilityStatus("not_applicable")
	require.NoError(t, err)
	assert.Equal(t, NotApplicable, s)
}

func TestParsePillarID(t *testing.T) {
	p, err := ParsePillarID("local_discovery")
	require.NoError(t, err)
	assert.Equal(t, PillarLocalDiscovery, p)

	p, err = ParsePillarID(" Local_Discovery ")
	require.NoError(t, err)
	assert.Equal(t, PillarLocalDiscovery, p)

	_, err = ParsePillarID("local-discovery")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.Len(t, Pillars(), 6)
}

func TestPillarID_ValidateAndUnmarshal(t *testing.T) {
	assert.NoError(t, PillarContent.Validate())
	assert.True(t, errors.Is(PillarID("Content").Validate(), errors.ErrInvalidRequest), "non-canonical spelling")
	assert.True(t, errors.Is(PillarID("reviews").Validate(), errors.ErrInvalidRequest))

	var p PillarID
	require.NoError(t, p.UnmarshalText([]byte("Local_Discovery")))
	assert.Equal(t, PillarLocalDiscovery, p)
	assert.Error(t, p.UnmarshalText([]byte("locale")))
}
