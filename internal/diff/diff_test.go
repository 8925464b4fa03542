package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_Identical(t *testing.T) {
	cfg := "interface Gi0/1\n description uplink\n!\nhostname sw-01\n"
	assert.Empty(t, Diff(cfg, cfg))
}

func TestDiff_ModifiedSection(t *testing.T) {
	before := "interface Gi0/1\n description old\n"
	after := "interface Gi0/1\n description new\n"

	entries := Diff(before, after)
	require.Len(t, entries, 1)
	assert.Equal(t, "interface Gi0/1", entries[0].Section)
	assert.Equal(t, Modified, entries[0].ChangeType)
	assert.Equal(t, []string{"interface Gi0/1", " description old"}, entries[0].BeforeLines)
	assert.Equal(t, []string{"interface Gi0/1", " description new"}, entries[0].AfterLines)
}

func TestDiff_AddedAndRemoved(t *testing.T) {
	before := "interface Gi0/1\n description a\nntp server 10.0.0.1\n"
	after := "interface Gi0/1\n description a\nvlan 100\n name users\n"

	entries := Diff(before, after)
	require.Len(t, entries, 2)
	assert.Equal(t, "vlan 100", entries[0].Section)
	assert.Equal(t, Added, entries[0].ChangeType)
	assert.Empty(t, entries[0].BeforeLines)
	assert.Equal(t, "ntp server 10.0.0.1", entries[1].Section)
	assert.Equal(t, Removed, entries[1].ChangeType)
	assert.Empty(t, entries[1].AfterLines)
}

func TestDiff_OrderInsensitiveWithinSection(t *testing.T) {
	before := "interface Gi0/1\n description x\n no shutdown\n"
	after := "interface Gi0/1\n no shutdown\n description x\n"
	assert.Empty(t, Diff(before, after))
}

func TestDiff_SingleLineSections(t *testing.T) {
	before := "hostname sw-01\n"
	after := "hostname sw-02\n"

	entries := Diff(before, after)
	require.Len(t, entries, 2)
	assert.Equal(t, Added, entries[0].ChangeType)
	assert.Equal(t, "hostname sw-02", entries[0].Section)
	assert.Equal(t, Removed, entries[1].ChangeType)
	assert.Equal(t, "hostname sw-01", entries[1].Section)
}

func TestDiff_CommentsAndBlanksIgnored(t *testing.T) {
	before := "!\n! config saved\nhostname sw-01\n\n"
	after := "! different banner\nhostname sw-01\n"
	assert.Empty(t, Diff(before, after))
}

func TestDiff_DeterministicOrdering(t *testing.T) {
	before := "a 1\nb 2\nc 3\n"
	after := "c 3\nd 4\na 9\n"

	first := Diff(before, after)
	for range 10 {
		assert.Equal(t, first, Diff(before, after))
	}
	// After-config appearance order for added/modified, then removed by
	// before-config order.
	require.Len(t, first, 4)
	assert.Equal(t, "d 4", first[0].Section)
	assert.Equal(t, Added, first[0].ChangeType)
	assert.Equal(t, "a 9", first[1].Section)
	assert.Equal(t, Added, first[1].ChangeType)
	assert.Equal(t, "a 1", first[2].Section)
	assert.Equal(t, Removed, first[2].ChangeType)
	assert.Equal(t, "b 2", first[3].Section)
	assert.Equal(t, Removed, first[3].ChangeType)
}

func TestSections_IndentedBodyBelongsToHeader(t *testing.T) {
	secs := Sections("router ospf 1\n network 10.0.0.0 0.0.0.255 area 0\n passive-interface default\nline con 0\n")
	require.Contains(t, secs, "router ospf 1")
	assert.Len(t, secs["router ospf 1"].Lines, 3)
	require.Contains(t, secs, "line con 0")
	assert.Len(t, secs["line con 0"].Lines, 1)
}
