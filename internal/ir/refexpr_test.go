package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectRefs_Nested(t *testing.T) {
	props := map[string]any{
		"launchTemplate": Ref("lt"),
		"targetGroups":   []any{GetAttr("tg", "arn")},
		"subnets":        Import("public-subnets"),
		"minSize":        2,
		"tags":           map[string]any{"team": Literal("platform")},
	}

	refs := CollectRefs(props)
	require.Len(t, refs, 3)

	targets := make(map[RefKind]string)
	for _, r := range refs {
		targets[r.Kind] = r.Referent()
	}
	assert.Equal(t, "lt", targets[RefByID])
	assert.Equal(t, "tg", targets[RefGetAttr])
	assert.Equal(t, "", targets[RefImport], "imports introduce no graph edge")
}

func TestRefExpr_String(t *testing.T) {
	assert.Equal(t, "!Ref lt", Ref("lt").String())
	assert.Equal(t, "!GetAtt tg.arn", GetAttr("tg", "arn").String())
	assert.Equal(t, "!ImportValue vpc-id", Import("vpc-id").String())
	assert.Equal(t, "8080", Literal(8080).String())
}

func TestRefExpr_MarshalTemplateForm(t *testing.T) {
	data, err := json.Marshal(map[string]any{
		"a": Ref("lt"),
		"b": GetAttr("tg", "arn"),
		"c": Import("vpc-id"),
		"d": Literal("plain"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"a": {"!Ref": "lt"},
		"b": {"!GetAtt": "tg.arn"},
		"c": {"!ImportValue": "vpc-id"},
		"d": "plain"
	}`, string(data))
}
