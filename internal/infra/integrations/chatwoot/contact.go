package chatwoot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"zapdesk/internal/ports"
	apperrors "zapdesk/pkg/errors"
	"zapdesk/platform/logger"
)

// ContactSync resolves the Chatwoot contact for a WhatsApp sender. Lookups
// are tolerant of every phone form the number might be stored under; when
// duplicates across forms exist and merging is enabled, the longer form
// survives.
type ContactSync struct {
	contacts ports.ContactMappingRepository
	logger   *logger.Logger
}

func NewContactSync(contacts ports.ContactMappingRepository, logger *logger.Logger) *ContactSync {
	return &ContactSync{
		contacts: contacts,
		logger:   logger.WithModule("contact-sync"),
	}
}

// ResolveContact finds or creates the Chatwoot contact for a chat. The jid
// is stored as the contact identifier so outbound routing can address the
// exact chat, group JIDs included. The local mapping table short-circuits
// repeated lookups; a miss falls through to remote search across all
// variants, then create. The client is passed per call because each
// instance talks to its own Chatwoot account.
func (cs *ContactSync) ResolveContact(ctx context.Context, client ports.ChatwootClient, config *ports.ChatwootInstanceConfig, jid, phone, name, avatarURL string) (*ports.ChatwootContact, error) {
	variants := PhoneVariants(phone)
	if len(variants) == 0 {
		return nil, fmt.Errorf("cannot resolve contact for empty phone")
	}
	canonical := variants[0]

	if cached, err := cs.contacts.GetByPhones(ctx, config.Instance, variants); err == nil {
		return &ports.ChatwootContact{
			ID:          cached.CwContactID,
			Name:        cached.Name,
			PhoneNumber: cached.Phone,
		}, nil
	} else if !errors.Is(err, ports.ErrContactNotFound) {
		return nil, err
	}

	contact, err := cs.searchAcrossVariants(ctx, client, config, variants)
	if err != nil {
		return nil, err
	}

	if contact == nil {
		contact, err = cs.createContact(ctx, client, config, jid, canonical, name, avatarURL)
		if err != nil {
			return nil, err
		}
	} else {
		contact = cs.maybeUpdateName(ctx, client, contact, name)
	}

	cs.cacheContact(ctx, config.Instance, canonical, contact, avatarURL)

	return contact, nil
}

// searchAcrossVariants looks up every phone form. When distinct contacts
// exist under two forms and the merge policy allows it, they are merged
// and the survivor returned.
func (cs *ContactSync) searchAcrossVariants(ctx context.Context, client ports.ChatwootClient, config *ports.ChatwootInstanceConfig, variants []string) (*ports.ChatwootContact, error) {
	found := make([]*ports.ChatwootContact, 0, len(variants))

	for _, variant := range variants {
		results, err := client.SearchContacts(ctx, variant)
		if err != nil {
			return nil, fmt.Errorf("failed to search contact %s: %w", variant, err)
		}
		for i := range results {
			if results[i].PhoneNumber == variant {
				found = append(found, &results[i])
				break
			}
		}
	}

	if len(found) == 0 {
		return nil, nil
	}

	if len(found) > 1 && found[0].ID != found[1].ID {
		if config.MergeBrazilContacts {
			return cs.mergeVariantContacts(ctx, client, found[0], found[1])
		}
		cs.logger.WarnWithFields("Duplicate variant contacts found, merge disabled", map[string]interface{}{
			"instance":   config.Instance,
			"contact_a":  found[0].ID,
			"contact_b":  found[1].ID,
		})
	}

	return found[0], nil
}

// mergeVariantContacts merges the short-form contact into the long-form
// one. Variants are ordered longest first, so found[0] is the survivor.
func (cs *ContactSync) mergeVariantContacts(ctx context.Context, client ports.ChatwootClient, survivor, mergee *ports.ChatwootContact) (*ports.ChatwootContact, error) {
	cs.logger.InfoWithFields("Merging duplicate variant contacts", map[string]interface{}{
		"survivor_id": survivor.ID,
		"mergee_id":   mergee.ID,
	})

	if err := client.MergeContacts(ctx, survivor.ID, mergee.ID); err != nil {
		// A failed merge leaves two contacts but does not block bridging
		cs.logger.ErrorWithFields("Failed to merge variant contacts", map[string]interface{}{
			"survivor_id": survivor.ID,
			"mergee_id":   mergee.ID,
			"error":       err.Error(),
		})
	}

	return survivor, nil
}

func (cs *ContactSync) createContact(ctx context.Context, client ports.ChatwootClient, config *ports.ChatwootInstanceConfig, jid, phone, name, avatarURL string) (*ports.ChatwootContact, error) {
	displayName := SanitizeDisplayName(name)
	if displayName == "" {
		displayName = phone
	}

	// The identifier is the chat JID itself. Deriving it from the phone
	// would mislabel group chats as user chats.
	identifier := jid
	if identifier == "" {
		identifier = JIDFromPhone(phone)
	}

	contact, err := client.CreateContact(ctx, &ports.CreateContactRequest{
		Name:        displayName,
		PhoneNumber: phone,
		Identifier:  identifier,
		AvatarURL:   avatarURL,
		InboxID:     config.InboxID,
	})
	if err != nil {
		// A concurrent worker may have created it first; re-search once
		if apperrors.IsPermanent(err) {
			if existing, searchErr := cs.searchAcrossVariants(ctx, client, config, []string{phone}); searchErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	return contact, nil
}

// maybeUpdateName pushes the WhatsApp push name when Chatwoot still shows
// the bare number or nothing at all. Agent-set names are never overwritten.
func (cs *ContactSync) maybeUpdateName(ctx context.Context, client ports.ChatwootClient, contact *ports.ChatwootContact, name string) *ports.ChatwootContact {
	displayName := SanitizeDisplayName(name)
	if displayName == "" || displayName == contact.Name {
		return contact
	}

	current := strings.TrimSpace(contact.Name)
	if current != "" && current != contact.PhoneNumber && current != strings.TrimPrefix(contact.PhoneNumber, "+") {
		return contact
	}

	updated, err := client.UpdateContact(ctx, contact.ID, &ports.UpdateContactRequest{Name: displayName})
	if err != nil {
		cs.logger.DebugWithFields("Failed to update contact name", map[string]interface{}{
			"contact_id": contact.ID,
			"error":      err.Error(),
		})
		return contact
	}

	return updated
}

func (cs *ContactSync) cacheContact(ctx context.Context, instance, phone string, contact *ports.ChatwootContact, avatarURL string) {
	mapping := &ports.ContactMapping{
		ID:          uuid.New(),
		Instance:    instance,
		Phone:       phone,
		CwContactID: contact.ID,
		Name:        contact.Name,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if avatarURL != "" {
		mapping.AvatarURL = &avatarURL
	}

	if err := cs.contacts.Upsert(ctx, mapping); err != nil {
		cs.logger.WarnWithFields("Failed to cache contact mapping", map[string]interface{}{
			"instance": instance,
			"phone":    phone,
			"error":    err.Error(),
		})
	}
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeDisplayName trims control characters and diacritics so names are
// safe for inbox and contact labels.
func SanitizeDisplayName(name string) string {
	stripped, _, err := transform.String(diacriticStripper, name)
	if err != nil {
		stripped = name
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)

	return strings.TrimSpace(cleaned)
}
