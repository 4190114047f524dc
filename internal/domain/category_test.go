package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *CategoryRegistry {
	return NewCategoryRegistry(
		CategorySpec{
			Category:       CategoryGeneral,
			Partition:      "general",
			ChannelPrefix:  "ticket",
			ParentID:       "parent-general",
			AudienceRoleID: "role-support",
		},
		CategorySpec{
			Category:       CategoryDonation,
			Partition:      "donations",
			ChannelPrefix:  "donation",
			ParentID:       "parent-donations",
			AudienceRoleID: "role-donation-team",
			RequiredRoleID: "role-donator",
		},
	)
}

func TestRegistryResolve(t *testing.T) {
	registry := testRegistry()

	general, ok := registry.Resolve(CategoryGeneral)
	require.True(t, ok)
	assert.Equal(t, "general", general.Partition)
	assert.False(t, general.Privileged())

	donation, ok := registry.Resolve(CategoryDonation)
	require.True(t, ok)
	assert.True(t, donation.Privileged())

	_, ok = registry.Resolve(Category("BOGUS"))
	assert.False(t, ok)
}

func TestRegistryAllPreservesOrder(t *testing.T) {
	registry := testRegistry()

	all := registry.All()
	require.Len(t, all, 2)
	assert.Equal(t, CategoryGeneral, all[0].Category)
	assert.Equal(t, CategoryDonation, all[1].Category)
}

func TestChannelName(t *testing.T) {
	spec := CategorySpec{ChannelPrefix: "donation"}
	assert.Equal(t, "donation-4242", spec.ChannelName("4242"))
}

func TestOverwrites(t *testing.T) {
	spec, _ := testRegistry().Resolve(CategoryGeneral)

	overwrites := spec.Overwrites("guild-1", "user-9")
	require.Len(t, overwrites, 3)

	everyone := overwrites[0]
	assert.Equal(t, "guild-1", everyone.SubjectID)
	assert.True(t, everyone.Role)
	assert.Equal(t, []string{PermViewChannel}, everyone.Deny)
	assert.Empty(t, everyone.Allow)

	requester := overwrites[1]
	assert.Equal(t, "user-9", requester.SubjectID)
	assert.False(t, requester.Role)
	assert.Equal(t, ParticipantAllowSet(), requester.Allow)

	audience := overwrites[2]
	assert.Equal(t, "role-support", audience.SubjectID)
	assert.True(t, audience.Role)
	assert.Contains(t, audience.Allow, PermManageMessages)
}
