package docstore

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestCollectionChangesMatchesOwnParentOnly(t *testing.T) {
	p := collectionChanges("results/cmd.1_agent/rows")
	require.Len(t, p, 1)
	require.Equal(t, "$match", p[0][0].Key)

	match, ok := p[0][0].Value.(bson.D)
	require.True(t, ok)
	require.Len(t, match, 1)
	assert.Equal(t, "documentKey._id", match[0].Key)

	re, ok := match[0].Value.(bson.Regex)
	require.True(t, ok)
	prefix := regexp.MustCompile(re.Pattern)

	assert.True(t, prefix.MatchString(fullID("results/cmd.1_agent/rows", "r0")))
	assert.False(t, prefix.MatchString(fullID("results/cmd.1_agent2/rows", "r0")))
	assert.False(t, prefix.MatchString(fullID("results/cmdx1_agent/rows", "r0")), "dots are literal")
	assert.False(t, prefix.MatchString(fullID("results/other_agent/rows", "r0")))
}
