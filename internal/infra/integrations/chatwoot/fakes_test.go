package chatwoot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zapdesk/internal/ports"
	apperrors "zapdesk/pkg/errors"
)

// fakeClient implements ports.ChatwootClient with overridable funcs and
// call counters.
type fakeClient struct {
	mu sync.Mutex

	inboxes       []ports.ChatwootInbox
	contacts      []ports.ChatwootContact
	conversations map[int]*ports.ChatwootConversation

	nextContactID      int
	nextConversationID int
	nextMessageID      int

	createdMessages    []createdMessage
	deletedMessages    []int
	mergedPairs        [][2]int
	createConvCalls    int
	toggledStatus      map[int]string
	searchContactsFn   func(query string) ([]ports.ChatwootContact, error)
	createContactErr   error
	createMessageErr   error
	createConvErr      error
	getConversationErr error
}

type createdMessage struct {
	ConversationID int
	Request        *ports.CreateMessageRequest
	Attachment     *ports.AttachmentMessageRequest
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		conversations:      make(map[int]*ports.ChatwootConversation),
		toggledStatus:      make(map[int]string),
		nextContactID:      100,
		nextConversationID: 500,
		nextMessageID:      9000,
	}
}

func (f *fakeClient) CreateInbox(ctx context.Context, name, webhookURL string) (*ports.ChatwootInbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inbox := ports.ChatwootInbox{ID: len(f.inboxes) + 1, Name: name}
	f.inboxes = append(f.inboxes, inbox)
	return &inbox, nil
}

func (f *fakeClient) ListInboxes(ctx context.Context) ([]ports.ChatwootInbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.ChatwootInbox(nil), f.inboxes...), nil
}

func (f *fakeClient) SearchContacts(ctx context.Context, query string) ([]ports.ChatwootContact, error) {
	f.mu.Lock()
	fn := f.searchContactsFn
	f.mu.Unlock()
	if fn != nil {
		return fn(query)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var results []ports.ChatwootContact
	for _, contact := range f.contacts {
		if contact.PhoneNumber == query || contact.Identifier == query {
			results = append(results, contact)
		}
	}
	return results, nil
}

func (f *fakeClient) CreateContact(ctx context.Context, req *ports.CreateContactRequest) (*ports.ChatwootContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createContactErr != nil {
		return nil, f.createContactErr
	}
	f.nextContactID++
	contact := ports.ChatwootContact{
		ID:          f.nextContactID,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Identifier:  req.Identifier,
	}
	f.contacts = append(f.contacts, contact)
	return &contact, nil
}

func (f *fakeClient) UpdateContact(ctx context.Context, contactID int, req *ports.UpdateContactRequest) (*ports.ChatwootContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.contacts {
		if f.contacts[i].ID == contactID {
			f.contacts[i].Name = req.Name
			contact := f.contacts[i]
			return &contact, nil
		}
	}
	return nil, apperrors.Permanent("update contact", fmt.Errorf("contact %d not found", contactID))
}

func (f *fakeClient) MergeContacts(ctx context.Context, baseContactID, mergeeContactID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mergedPairs = append(f.mergedPairs, [2]int{baseContactID, mergeeContactID})
	return nil
}

func (f *fakeClient) ListContactConversations(ctx context.Context, contactID int) ([]ports.ChatwootConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []ports.ChatwootConversation
	for _, conversation := range f.conversations {
		if conversation.ContactID == contactID {
			results = append(results, *conversation)
		}
	}
	return results, nil
}

func (f *fakeClient) CreateConversation(ctx context.Context, req *ports.CreateConversationRequest) (*ports.ChatwootConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createConvCalls++
	if f.createConvErr != nil {
		return nil, f.createConvErr
	}
	f.nextConversationID++
	conversation := &ports.ChatwootConversation{
		ID:        f.nextConversationID,
		ContactID: req.ContactID,
		InboxID:   req.InboxID,
		Status:    req.Status,
	}
	if conversation.Status == "" {
		conversation.Status = ports.ConversationStatusOpen
	}
	f.conversations[conversation.ID] = conversation
	return conversation, nil
}

func (f *fakeClient) GetConversation(ctx context.Context, conversationID int) (*ports.ChatwootConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getConversationErr != nil {
		return nil, f.getConversationErr
	}
	conversation, ok := f.conversations[conversationID]
	if !ok {
		return nil, apperrors.Permanent("get conversation", fmt.Errorf("conversation %d not found", conversationID))
	}
	copied := *conversation
	return &copied, nil
}

func (f *fakeClient) ToggleConversationStatus(ctx context.Context, conversationID int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggledStatus[conversationID] = status
	if conversation, ok := f.conversations[conversationID]; ok {
		conversation.Status = status
	}
	return nil
}

func (f *fakeClient) CreateMessage(ctx context.Context, conversationID int, req *ports.CreateMessageRequest) (*ports.ChatwootMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createMessageErr != nil {
		return nil, f.createMessageErr
	}
	f.nextMessageID++
	f.createdMessages = append(f.createdMessages, createdMessage{ConversationID: conversationID, Request: req})
	return &ports.ChatwootMessage{
		ID:             f.nextMessageID,
		Content:        req.Content,
		MessageType:    req.MessageType,
		ConversationID: conversationID,
		SourceID:       req.SourceID,
		Private:        req.Private,
	}, nil
}

func (f *fakeClient) CreateAttachmentMessage(ctx context.Context, conversationID int, req *ports.AttachmentMessageRequest) (*ports.ChatwootMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMessageID++
	f.createdMessages = append(f.createdMessages, createdMessage{ConversationID: conversationID, Attachment: req})
	return &ports.ChatwootMessage{
		ID:             f.nextMessageID,
		Content:        req.Content,
		MessageType:    req.MessageType,
		ConversationID: conversationID,
		SourceID:       req.SourceID,
	}, nil
}

func (f *fakeClient) DeleteMessage(ctx context.Context, conversationID, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedMessages = append(f.deletedMessages, messageID)
	return nil
}

func (f *fakeClient) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletedMessages)
}

func (f *fakeClient) lastMessage() *createdMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createdMessages) == 0 {
		return nil
	}
	return &f.createdMessages[len(f.createdMessages)-1]
}

// fakeManager hands out one fixed client and config.
type fakeManager struct {
	client       ports.ChatwootClient
	config       *ports.ChatwootInstanceConfig
	configErr    error
	inboxUpdates []int
	mu           sync.Mutex
}

func (m *fakeManager) GetClient(ctx context.Context, instance string) (ports.ChatwootClient, error) {
	return m.client, nil
}

func (m *fakeManager) GetConfig(ctx context.Context, instance string) (*ports.ChatwootInstanceConfig, error) {
	if m.configErr != nil {
		return nil, m.configErr
	}
	return m.config, nil
}

func (m *fakeManager) IsEnabled(ctx context.Context, instance string) bool {
	return m.configErr == nil && m.config != nil && m.config.Enabled
}

func (m *fakeManager) InvalidateInstance(instance string) {}

func (m *fakeManager) SetInboxID(ctx context.Context, instance string, inboxID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inboxUpdates = append(m.inboxUpdates, inboxID)
	m.config.InboxID = inboxID
	return nil
}

// fakeMessageRepo is an in-memory ports.MessageMappingRepository.
type fakeMessageRepo struct {
	mu       sync.Mutex
	mappings map[string]*ports.MessageMapping
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{mappings: make(map[string]*ports.MessageMapping)}
}

func nativeKey(instance, msgID string, fromMe bool) string {
	return fmt.Sprintf("%s|%s|%t", instance, msgID, fromMe)
}

func (r *fakeMessageRepo) Create(ctx context.Context, mapping *ports.MessageMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nativeKey(mapping.Instance, mapping.MsgID, mapping.FromMe)
	if _, exists := r.mappings[key]; exists {
		return apperrors.ErrRaceLost
	}
	copied := *mapping
	r.mappings[key] = &copied
	return nil
}

func (r *fakeMessageRepo) GetByNativeID(ctx context.Context, instance, msgID string, fromMe bool) (*ports.MessageMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapping, ok := r.mappings[nativeKey(instance, msgID, fromMe)]
	if !ok {
		return nil, apperrors.ErrMappingNotFound
	}
	copied := *mapping
	return &copied, nil
}

func (r *fakeMessageRepo) GetByChatwootMessageID(ctx context.Context, instance string, cwMessageID int) (*ports.MessageMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mapping := range r.mappings {
		if mapping.Instance == instance && mapping.CwMessageID != nil && *mapping.CwMessageID == cwMessageID {
			copied := *mapping
			return &copied, nil
		}
	}
	return nil, apperrors.ErrMappingNotFound
}

func (r *fakeMessageRepo) SetChatwootIDs(ctx context.Context, instance, msgID string, fromMe bool, cwMessageID, cwConversationID, cwInboxID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapping, ok := r.mappings[nativeKey(instance, msgID, fromMe)]
	if !ok {
		return apperrors.ErrMappingNotFound
	}
	mapping.CwMessageID = &cwMessageID
	mapping.CwConversationID = &cwConversationID
	mapping.CwInboxID = &cwInboxID
	mapping.SyncStatus = ports.SyncStatusSynced
	return nil
}

func (r *fakeMessageRepo) SetSyncStatus(ctx context.Context, instance, msgID string, fromMe bool, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapping, ok := r.mappings[nativeKey(instance, msgID, fromMe)]
	if !ok {
		return apperrors.ErrMappingNotFound
	}
	mapping.SyncStatus = status
	return nil
}

func (r *fakeMessageRepo) MarkRead(ctx context.Context, instance, msgID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mapping := range r.mappings {
		if mapping.Instance == instance && mapping.MsgID == msgID {
			mapping.IsRead = true
			return nil
		}
	}
	return apperrors.ErrMappingNotFound
}

func (r *fakeMessageRepo) DeleteByChatwootMessageID(ctx context.Context, instance string, cwMessageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, mapping := range r.mappings {
		if mapping.Instance == instance && mapping.CwMessageID != nil && *mapping.CwMessageID == cwMessageID {
			delete(r.mappings, key)
			return nil
		}
	}
	return nil
}

func (r *fakeMessageRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for key, mapping := range r.mappings {
		if mapping.CreatedAt.Before(cutoff) {
			delete(r.mappings, key)
			deleted++
		}
	}
	return deleted, nil
}

// fakeContactRepo is an in-memory ports.ContactMappingRepository.
type fakeContactRepo struct {
	mu       sync.Mutex
	mappings map[string]*ports.ContactMapping
	deletes  int
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{mappings: make(map[string]*ports.ContactMapping)}
}

func (r *fakeContactRepo) GetByPhones(ctx context.Context, instance string, phones []string) (*ports.ContactMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *ports.ContactMapping
	for _, phone := range phones {
		if mapping, ok := r.mappings[instance+"|"+phone]; ok {
			if best == nil || len(mapping.Phone) > len(best.Phone) {
				best = mapping
			}
		}
	}
	if best == nil {
		return nil, ports.ErrContactNotFound
	}
	copied := *best
	return &copied, nil
}

func (r *fakeContactRepo) Upsert(ctx context.Context, mapping *ports.ContactMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *mapping
	r.mappings[mapping.Instance+"|"+mapping.Phone] = &copied
	return nil
}

func (r *fakeContactRepo) DeleteByInstance(ctx context.Context, instance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, mapping := range r.mappings {
		if mapping.Instance == instance {
			delete(r.mappings, key)
		}
	}
	r.deletes++
	return nil
}

// fakeGateway is an in-memory ports.WhatsAppGateway.
type fakeGateway struct {
	mu sync.Mutex

	sentTexts   []sentText
	sentMedia   []sentMedia
	revoked     []string
	sendErr     error
	status      *ports.InstanceStatus
	nextMsgSeq  int
	avatarURL   string
	connectErr  error
	connects    int
	disconnects int
}

type sentText struct {
	Instance string
	ToJID    string
	Body     string
	Reply    *ports.ReplyContext
}

type sentMedia struct {
	Instance string
	ToJID    string
	Media    *ports.OutboundMedia
	Reply    *ports.ReplyContext
}

func (g *fakeGateway) SendText(ctx context.Context, instance, toJID, body string, reply *ports.ReplyContext) (*ports.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.nextMsgSeq++
	g.sentTexts = append(g.sentTexts, sentText{Instance: instance, ToJID: toJID, Body: body, Reply: reply})
	return &ports.SendResult{MessageID: fmt.Sprintf("3EB0%04d", g.nextMsgSeq), Timestamp: time.Now()}, nil
}

func (g *fakeGateway) SendMedia(ctx context.Context, instance, toJID string, media *ports.OutboundMedia, reply *ports.ReplyContext) (*ports.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.nextMsgSeq++
	g.sentMedia = append(g.sentMedia, sentMedia{Instance: instance, ToJID: toJID, Media: media, Reply: reply})
	return &ports.SendResult{MessageID: fmt.Sprintf("3EB0%04d", g.nextMsgSeq), Timestamp: time.Now()}, nil
}

func (g *fakeGateway) SendReaction(ctx context.Context, instance, toJID, targetMsgID, emoji string) (*ports.SendResult, error) {
	return &ports.SendResult{MessageID: "REACT1", Timestamp: time.Now()}, nil
}

func (g *fakeGateway) RevokeMessage(ctx context.Context, instance, chatJID, msgID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revoked = append(g.revoked, msgID)
	return nil
}

func (g *fakeGateway) revokedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.revoked)
}

func (g *fakeGateway) MarkRead(ctx context.Context, instance, chatJID, senderJID string, msgIDs []string) error {
	return nil
}

func (g *fakeGateway) GetProfilePictureURL(ctx context.Context, instance, jid string) (string, error) {
	return g.avatarURL, nil
}

func (g *fakeGateway) Connect(ctx context.Context, instance string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connects++
	return g.connectErr
}

func (g *fakeGateway) Disconnect(instance string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnects++
	return nil
}

func (g *fakeGateway) Logout(ctx context.Context, instance string) error {
	return nil
}

func (g *fakeGateway) ConnectionStatus(instance string) *ports.InstanceStatus {
	return g.status
}

func (g *fakeGateway) GetQRCode(ctx context.Context, instance string) (*ports.QRCodeResult, error) {
	return nil, fmt.Errorf("no qr available")
}
