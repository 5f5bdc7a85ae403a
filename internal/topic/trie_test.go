package topic

import (
	"testing"

	"github.com/nas-panel/panel-server/internal/mqttcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrieExactMatch(t *testing.T) {
	tr := NewTrie()
	require.NoError(t, tr.Subscribe("nas/panel/data", "c1", mqttcodec.QoS0))

	subs := tr.Match("nas/panel/data")
	require.Len(t, subs, 1)
	assert.Equal(t, "c1", subs[0].ClientID)
}

func TestTriePlusWildcardMatchesOneLevel(t *testing.T) {
	tr := NewTrie()
	require.NoError(t, tr.Subscribe("nas/+/data", "c1", mqttcodec.QoS1))

	assert.Len(t, tr.Match("nas/panel/data"), 1)
	assert.Len(t, tr.Match("nas/panel/other/data"), 0)
}

func TestTrieHashWildcardMatchesMultipleLevels(t *testing.T) {
	tr := NewTrie()
	require.NoError(t, tr.Subscribe("nas/panel/#", "c1", mqttcodec.QoS0))

	assert.Len(t, tr.Match("nas/panel"), 1, "'#' also matches its parent level with zero additional levels")
	assert.Len(t, tr.Match("nas/panel/data"), 1)
	assert.Len(t, tr.Match("nas/panel/data/nested"), 1)
}

func TestTrieLeadingWildcardExcludesDollarTopics(t *testing.T) {
	tr := NewTrie()
	require.NoError(t, tr.Subscribe("#", "c1", mqttcodec.QoS0))
	require.NoError(t, tr.Subscribe("+/status", "c2", mqttcodec.QoS0))

	assert.Empty(t, tr.Match("$SYS/broker/uptime"))
	assert.Empty(t, tr.Match("$SYS/status"))
	assert.Len(t, tr.Match("nas/status"), 1)
}

func TestTrieResubscribeOverwritesQoS(t *testing.T) {
	tr := NewTrie()
	require.NoError(t, tr.Subscribe("a/b", "c1", mqttcodec.QoS0))
	require.NoError(t, tr.Subscribe("a/b", "c1", mqttcodec.QoS2))

	subs := tr.Match("a/b")
	require.Len(t, subs, 1)
	assert.Equal(t, mqttcodec.QoS2, subs[0].QoS)
}

func TestTrieUnsubscribePrunesNodes(t *testing.T) {
	tr := NewTrie()
	require.NoError(t, tr.Subscribe("a/b/c", "c1", mqttcodec.QoS0))
	assert.True(t, tr.Unsubscribe("a/b/c", "c1"))
	assert.Empty(t, tr.root.children)
	assert.False(t, tr.Unsubscribe("a/b/c", "c1"))
}

func TestTrieUnsubscribeAllRemovesEveryFilter(t *testing.T) {
	tr := NewTrie()
	require.NoError(t, tr.Subscribe("a/b", "c1", mqttcodec.QoS0))
	require.NoError(t, tr.Subscribe("x/y", "c1", mqttcodec.QoS0))
	require.NoError(t, tr.Subscribe("a/b", "c2", mqttcodec.QoS0))

	tr.UnsubscribeAll("c1")

	assert.Empty(t, tr.Match("x/y"))
	subs := tr.Match("a/b")
	require.Len(t, subs, 1)
	assert.Equal(t, "c2", subs[0].ClientID)
}

func TestTrieRejectsInvalidFilter(t *testing.T) {
	tr := NewTrie()
	err := tr.Subscribe("a/#/b", "c1", mqttcodec.QoS0)
	assert.Error(t, err)
}
