package domain

import "fmt"

// Category classifies a ticket. Each category carries its own permission
// template, audience role and store partition; the lifecycle engine dispatches
// through CategorySpec data, never through category branches.
type Category string

const (
	CategoryGeneral  Category = "GENERAL"
	CategoryDonation Category = "DONATION"
)

// Named permission grants passed to the platform client. Translating these to
// platform permission bits is the client adapter's concern.
const (
	PermViewChannel        = "VIEW_CHANNEL"
	PermSendMessages       = "SEND_MESSAGES"
	PermReadMessageHistory = "READ_MESSAGE_HISTORY"
	PermAttachFiles        = "ATTACH_FILES"
	PermEmbedLinks         = "EMBED_LINKS"
	PermManageMessages     = "MANAGE_MESSAGES"
)

// PermissionOverwrite grants or denies named permissions to one subject on a
// channel. Role marks the subject as a role rather than a user.
type PermissionOverwrite struct {
	SubjectID string
	Role      bool
	Allow     []string
	Deny      []string
}

// CategorySpec is the per-category configuration the router resolves:
// store partition, channel naming, permission template, audience role and the
// capability required before a participant may be added.
type CategorySpec struct {
	Category Category

	// Partition names the record store partition holding this category's tickets.
	Partition string

	// ChannelPrefix is the naming template for created channels: "<prefix>-<requester>".
	ChannelPrefix string

	// ParentID is the platform category the channel is created under.
	ParentID string

	// AudienceRoleID is pinged on creation and granted staff-level channel access.
	AudienceRoleID string

	// RequiredRoleID, when set, must be held by a user before staff can add
	// them to a ticket of this category.
	RequiredRoleID string
}

// ChannelName renders the channel name for a requester.
func (s CategorySpec) ChannelName(requester string) string {
	return fmt.Sprintf("%s-%s", s.ChannelPrefix, requester)
}

// Privileged reports whether adding a participant requires a capability check.
func (s CategorySpec) Privileged() bool {
	return s.RequiredRoleID != ""
}

// Overwrites builds the creation-time permission template: everyone denied,
// the requester and the audience role allowed.
func (s CategorySpec) Overwrites(everyoneID, requesterID string) []PermissionOverwrite {
	return []PermissionOverwrite{
		{
			SubjectID: everyoneID,
			Role:      true,
			Deny:      []string{PermViewChannel},
		},
		{
			SubjectID: requesterID,
			Allow:     ParticipantAllowSet(),
		},
		{
			SubjectID: s.AudienceRoleID,
			Role:      true,
			Allow: []string{
				PermViewChannel,
				PermSendMessages,
				PermReadMessageHistory,
				PermManageMessages,
				PermAttachFiles,
				PermEmbedLinks,
			},
		},
	}
}

// ParticipantAllowSet is the grant applied to the requester at creation and to
// users added later via addParticipant.
func ParticipantAllowSet() []string {
	return []string{
		PermViewChannel,
		PermSendMessages,
		PermReadMessageHistory,
		PermAttachFiles,
		PermEmbedLinks,
	}
}

// CategoryRegistry resolves categories to their specs.
type CategoryRegistry struct {
	specs map[Category]CategorySpec
	order []Category
}

// NewCategoryRegistry builds a registry from the given specs.
func NewCategoryRegistry(specs ...CategorySpec) *CategoryRegistry {
	r := &CategoryRegistry{specs: make(map[Category]CategorySpec, len(specs))}
	for _, spec := range specs {
		if _, exists := r.specs[spec.Category]; !exists {
			r.order = append(r.order, spec.Category)
		}
		r.specs[spec.Category] = spec
	}
	return r
}

// Resolve returns the spec for a category.
func (r *CategoryRegistry) Resolve(category Category) (CategorySpec, bool) {
	spec, ok := r.specs[category]
	return spec, ok
}

// All returns the registered specs in registration order.
func (r *CategoryRegistry) All() []CategorySpec {
	out := make([]CategorySpec, 0, len(r.order))
	for _, category := range r.order {
		out = append(out, r.specs[category])
	}
	return out
}
